package main

import (
	"os"
	"sort"

	"github.com/spf13/cobra"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

var (
	configPath string
	profile    string
	region     string
	account    string
	cacheDir   string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aws-pipeline-monitor",
	Short: "Monitor AWS data pipeline resources",
	Long: `A CLI tool that polls Glue, Step Functions, Athena, EventBridge and
AWS Config for the state of data pipeline resources, caches the results per
account and renders filtered views and reports.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "AWS profile name (uses default credential chain if omitted)")
	rootCmd.PersistentFlags().StringVarP(&region, "region", "r", "", "AWS region (uses profile default if omitted)")
	rootCmd.PersistentFlags().StringVar(&account, "account", "", "Account ID for cache lookups; skips the STS call")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Cache directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(fetchCmd, reportCmd, cacheCmd, watchCmd, permissionsCmd, versionCmd)
}

func resourceTypeNames() []string {
	types := pm.ResourceTypes()
	names := make([]string, len(types))
	for i, rt := range types {
		names[i] = rt.String()
	}
	sort.Strings(names)
	return names
}
