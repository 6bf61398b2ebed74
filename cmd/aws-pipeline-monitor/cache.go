package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached batches",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status [type]",
	Short: "Show cache age and freshness per resource type",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [type]",
	Short: "Remove cached batches",
	Long:  `Remove the cached batch of one resource type, or of every type when none is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)
}

// selectedTypes returns the type named in args, or every type.
func selectedTypes(args []string) ([]pm.ResourceType, error) {
	if len(args) == 0 {
		return pm.ResourceTypes(), nil
	}
	rt, err := pm.ParseResourceType(args[0])
	if err != nil {
		return nil, err
	}
	return []pm.ResourceType{rt}, nil
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	types, err := selectedTypes(args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cmd, false)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache for %s in %s\n", a.identity, a.cfg.CacheDir)
	for _, rt := range types {
		age, ok := a.cache.Age(rt)
		if !ok {
			fmt.Fprintf(out, "  %-20s missing\n", rt)
			continue
		}
		state := "stale"
		if a.cache.IsFresh(rt, a.cfg.Resource(rt).Freshness) {
			state = "fresh"
		}
		updated := time.Now().Add(-age)
		fmt.Fprintf(out, "  %-20s %s (updated %s)\n", rt, state, humanize.Time(updated))
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	types, err := selectedTypes(args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cmd, false)
	if err != nil {
		return err
	}

	var failed []pm.ResourceType
	for _, rt := range types {
		if !a.cache.Clear(rt) {
			failed = append(failed, rt)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", rt)
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to clear cache for %v", failed)
	}
	return nil
}
