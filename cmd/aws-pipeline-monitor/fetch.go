package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

var (
	fetchForce  bool
	fetchFilter string
	fetchStatus string
	fetchWindow time.Duration
	fetchFormat string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <type>",
	Short: "Fetch the state of one resource type",
	Long: `Fetch every resource of the given type and print the filtered result.
A cache younger than the configured freshness is used instead of calling AWS
unless --force is given.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: resourceTypeNames(),
	RunE:      runFetch,
}

func init() {
	addViewFlags(fetchCmd.Flags().StringVarP, &fetchFilter, &fetchStatus, &fetchFormat)
	fetchCmd.Flags().DurationVar(&fetchWindow, "window", 0, "Only show resources started within this window (e.g. 24h)")
	fetchCmd.Flags().BoolVarP(&fetchForce, "force", "f", false, "Bypass the cache")
}

// addViewFlags registers the filter and format flags shared by fetch and
// report.
func addViewFlags(stringVarP func(p *string, name, shorthand, value, usage string), filter, status, format *string) {
	stringVarP(filter, "filter", "q", "", "Comma-separated name fragments to match")
	stringVarP(status, "status", "s", pm.StatusAll, "Only show resources with this status")
	stringVarP(format, "format", "o", formatTable, "Output format: table, json or markdown")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := parseResourceType(args)
	if err != nil {
		return err
	}
	if err := validFormat(fetchFormat); err != nil {
		return err
	}

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	m, err := a.monitor(rt)
	if err != nil {
		return err
	}

	u, err := m.Refresh(ctx, fetchForce)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rt, err)
	}

	warnFailures(cmd.ErrOrStderr(), u.Batch)
	fmt.Fprintf(cmd.ErrOrStderr(), "Loaded %d %s (%s)\n", u.Batch.ResourceCount, rt, describeOrigin(u))

	records := pm.Filter(u.Batch.Records, pm.Query{
		Text:         fetchFilter,
		Status:       fetchStatus,
		Window:       fetchWindow,
		WindowActive: fetchWindow > 0,
		Now:          time.Now(),
	})
	return render(cmd.OutOrStdout(), fetchFormat, u.Batch, records)
}
