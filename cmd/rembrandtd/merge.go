package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mergeTaskID string

var mergeCmd = &cobra.Command{
	Use:   "merge <id>",
	Short: "Run a session's branch through the merge pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringVar(&mergeTaskID, "task", "", "task id to mark done on a successful merge")
}

func runMerge(cmd *cobra.Command, args []string) error {
	reply := &MergeReply{}
	err := call(cmd, "Merge", MergeArgs{SessionID: args[0], TaskID: mergeTaskID}, reply)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "merged %s (%d files, +%d/-%d)\n", reply.CommitSHA, reply.FilesChanged, reply.Insertions, reply.Deletions)
	return nil
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove worktrees for terminal sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply := &CleanupReply{}
		if err := call(cmd, "Cleanup", struct{}{}, reply); err != nil {
			return err
		}
		for _, id := range reply.Removed {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d worktree(s)\n", len(reply.Removed))
		return nil
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reconcile the worktree registry against the filesystem",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply := &GcReply{}
		if err := call(cmd, "Gc", struct{}{}, reply); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d, orphaned %d\n", len(reply.Pruned), len(reply.Orphans))
		return nil
	},
}
