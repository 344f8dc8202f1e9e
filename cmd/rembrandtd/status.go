package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show detailed status for one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	reply := &GetHistoryReply{}
	if err := call(cmd, "GetHistory", GetHistoryArgs{SessionID: args[0], Offset: -1}, reply); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", args[0])
	fmt.Fprintf(out, "agent:    %s\n", reply.AgentID)
	fmt.Fprintf(out, "status:   %s\n", statusColor(reply.Status).Sprint(reply.Status.String()))
	fmt.Fprintf(out, "branch:   %s\n", reply.Branch)
	fmt.Fprintf(out, "workdir:  %s\n", reply.WorkDir)
	fmt.Fprintf(out, "created:  %s\n", reply.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
