package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
	"github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor/sources"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions [type]",
	Short: "Print required AWS IAM permissions",
	Long:  `Display the AWS IAM permissions required to monitor one resource type, or all of them.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := selectedTypes(args)
		if err != nil {
			return err
		}
		for _, perm := range requiredPermissions(types) {
			fmt.Fprintln(cmd.OutOrStdout(), perm)
		}
		return nil
	},
}

// requiredPermissions returns the de-duplicated IAM actions for types, in
// first-seen order.
func requiredPermissions(types []pm.ResourceType) []string {
	seen := make(map[string]bool)
	var perms []string
	for _, rt := range types {
		for _, perm := range sources.RequiredPermissions(rt) {
			if seen[perm] {
				continue
			}
			seen[perm] = true
			perms = append(perms, perm)
		}
	}
	return perms
}
