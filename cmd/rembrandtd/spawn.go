package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	spawnPrompt     string
	spawnTaskID     string
	spawnBranch     string
	spawnBare       bool
	spawnCommandStr string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <label>",
	Short: "Spawn a new agent session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnPrompt, "prompt", "", "initial prompt written to the session once it starts")
	spawnCmd.Flags().StringVar(&spawnTaskID, "task", "", "task id this session is working on")
	spawnCmd.Flags().StringVar(&spawnBranch, "branch", "", "base branch for an isolated session (default: the repo's current branch)")
	spawnCmd.Flags().BoolVar(&spawnBare, "bare", false, "run directly in the repo working copy instead of an isolated worktree/branch")
	spawnCmd.Flags().StringVar(&spawnCommandStr, "command", "", "command to run (default: sh)")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	label := args[0]

	command := []string{"sh"}
	if spawnCommandStr != "" {
		command = strings.Fields(spawnCommandStr)
	}

	reply := &SpawnReply{}
	err := call(cmd, "Spawn", SpawnArgs{
		AgentLabel: label,
		Command:    command,
		Cols:       80,
		Rows:       24,
		Isolated:   !spawnBare,
		BaseBranch: spawnBranch,
		TaskID:     spawnTaskID,
	}, reply)
	if err != nil {
		return err
	}

	if spawnPrompt != "" {
		if err := call(cmd, "Write", WriteArgs{SessionID: reply.SessionID, Data: []byte(spawnPrompt + "\n")}, &struct{}{}); err != nil {
			return fmt.Errorf("spawned %s but failed to send prompt: %w", reply.SessionID, err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), reply.SessionID)
	return nil
}
