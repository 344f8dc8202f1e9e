package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	broadcastPrefix string
	broadcastStatus string
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <msg>",
	Short: "Write the same bytes to every matching session",
	Args:  cobra.ExactArgs(1),
	RunE:  runBroadcast,
}

func init() {
	broadcastCmd.Flags().StringVar(&broadcastPrefix, "label-prefix", "", "only sessions whose label has this prefix")
	broadcastCmd.Flags().StringVar(&broadcastStatus, "status", "", "only sessions in this status (running, exited, failed)")
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	reply := &BroadcastReply{}
	err := call(cmd, "Broadcast", BroadcastArgs{
		Data:         []byte(args[0]),
		LabelPrefix:  broadcastPrefix,
		StatusFilter: broadcastStatus,
	}, reply)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "delivered to %d session(s)\n", reply.Delivered)
	return nil
}
