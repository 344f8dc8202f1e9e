package main

import (
	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write <id> <bytes>",
	Short: "Write bytes to a session's stdin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "Write", WriteArgs{SessionID: args[0], Data: []byte(args[1])}, &struct{}{})
	},
}

var nudgeCmd = &cobra.Command{
	Use:   "nudge <id>",
	Short: "Send the configured nudge sequence to a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "Nudge", SessionIDArgs{SessionID: args[0]}, &struct{}{})
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <id>",
	Short: "Terminate a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "Kill", SessionIDArgs{SessionID: args[0]}, &struct{}{})
	},
}
