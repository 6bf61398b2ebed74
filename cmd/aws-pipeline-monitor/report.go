package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
	"github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor/sources"
)

var (
	reportFilter string
	reportStatus string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report <type>",
	Short: "Generate a markdown report from the cache",
	Long: `Generate a markdown report from the cached batch of one resource type.
The cache must exist for the current account; no AWS calls are made other than
resolving the account when --account is not given.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: resourceTypeNames(),
	RunE:      runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportFilter, "filter", "q", "", "Comma-separated name fragments to match")
	reportCmd.Flags().StringVarP(&reportStatus, "status", "s", pm.StatusAll, "Only show resources with this status")
	reportCmd.Flags().StringVar(&reportOutput, "output-file", "", "Output file path (default: stdout)")
}

func runReport(cmd *cobra.Command, args []string) error {
	rt, err := parseResourceType(args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cmd, false)
	if err != nil {
		return err
	}

	batch, ok := a.cache.Load(rt)
	if !ok {
		return fmt.Errorf("no cached %s for %s; run 'fetch %s' first", rt, a.identity, rt)
	}

	records := pm.Filter(batch.Records, pm.Query{Text: reportFilter, Status: reportStatus})
	rg := pm.NewReportGenerator(batch, records, sources.SummarySpecFor(rt))

	if reportOutput == "" || reportOutput == "-" {
		return rg.Generate(cmd.OutOrStdout())
	}

	f, err := os.Create(reportOutput)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := rg.Generate(f); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Report written to: %s\n", reportOutput)
	return nil
}
