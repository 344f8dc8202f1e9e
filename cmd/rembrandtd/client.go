package main

import (
	"fmt"
	"net/rpc"

	"github.com/spf13/cobra"
)

// dial connects to a running daemon's unix socket. Every command but
// `init` and `serve` is a thin client of the one process that actually
// holds the ptys and worktrees.
func dial(cmd *cobra.Command) (*rpc.Client, *workspace, error) {
	ws, err := resolveWorkspace(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := ws.requireInitialized(); err != nil {
		return nil, nil, err
	}
	client, err := rpc.Dial("unix", ws.socketPath())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rembrandtd at %s: %w (is `rembrandtd serve` running?)", ws.socketPath(), err)
	}
	return client, ws, nil
}

func call(cmd *cobra.Command, method string, args, reply any) error {
	client, _, err := dial(cmd)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call("rembrandt."+method, args, reply)
}
