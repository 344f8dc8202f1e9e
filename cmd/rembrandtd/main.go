package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "rembrandtd",
	Short: "Orchestrates multiple interactive coding-agent sessions",
	Long: `rembrandtd multiplexes several interactive coding-agent processes over
pseudo-terminals, isolates each one in its own git worktree, and pipelines
the winning branch back into mainline:

- Spawn, list, and attach to agent sessions running in a PTY
- Isolate a session's changes in a dedicated git worktree/branch
- Merge a session's branch through a gated type-check/test pipeline
- Run several agents against the same prompt as a competition and merge
  the winner

Ideal for running fleets of coding agents against one repository at once.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(nudgeCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(competeCmd)
	rootCmd.AddCommand(competeStatusCmd)
	rootCmd.AddCommand(competeCancelCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("repo", ".", "path to the git repository to orchestrate")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
