package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rembrandt-dev/rembrandt/internal/session"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known agent session",
	RunE:  runList,
}

// statusColor matches the status coloring spec: green=Running,
// yellow=Exited(0), red=Exited(nonzero)/Failed.
func statusColor(s session.Status) *color.Color {
	switch s.Kind {
	case session.StatusRunning:
		return color.New(color.FgGreen)
	case session.StatusExited:
		if s.ExitCode == 0 {
			return color.New(color.FgYellow)
		}
		return color.New(color.FgRed)
	default:
		return color.New(color.FgRed)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	reply := &ListReply{}
	if err := call(cmd, "List", struct{}{}, reply); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTATUS\tBRANCH\tWORKDIR")
	for _, info := range reply.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.ID, info.AgentID, statusColor(info.Status).Sprint(info.Status.String()), info.Branch, info.WorkDir)
	}
	return tw.Flush()
}
