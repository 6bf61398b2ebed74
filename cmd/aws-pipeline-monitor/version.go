package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Release builds set these with -ldflags "-X main.version=... -X main.gitBranch=... -X main.gitSHA=...".
// Otherwise they are filled from the embedded build info.
var (
	version   = ""
	gitBranch = "unknown"
	gitSHA    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the module version, git branch and commit the binary was built from.`,
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		fmt.Fprintln(cmd.OutOrStdout(), versionString(info))
	},
}

// versionString renders "aws-pipeline-monitor <version> <branch> (<sha>)".
// ldflags values win over build info; a modified VCS tree gets a -dirty suffix.
func versionString(info *debug.BuildInfo) string {
	ver, sha := version, gitSHA
	dirty := false

	if info != nil {
		if ver == "" && info.Main.Version != "" {
			ver = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if sha == "unknown" && s.Value != "" {
					sha = shortRevision(s.Value)
				}
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
	}
	if ver == "" {
		ver = "(devel)"
	}
	if dirty && sha != "unknown" {
		sha += "-dirty"
	}
	return fmt.Sprintf("aws-pipeline-monitor %s %s (%s)", ver, gitBranch, sha)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
