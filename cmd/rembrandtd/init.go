package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rembrandt-dev/rembrandt/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Allocate the workspace root and shared state database",
	Long: `Creates <repo>/.rembrandt with the agents/ and logs/ directories and an
empty state.db, per the workspace layout (§6). Safe to re-run; an existing
workspace is left untouched.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace(cmd)
	if err != nil {
		return err
	}
	if ws.exists() {
		fmt.Fprintf(cmd.OutOrStdout(), "workspace already initialized at %s\n", ws.root)
		return nil
	}

	for _, dir := range []string{ws.root, ws.agentsDir(), ws.logsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	st, err := store.Open(ws.statePath())
	if err != nil {
		return fmt.Errorf("create state db: %w", err)
	}
	if err := st.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "initialized rembrandt workspace at %s\n", ws.root)
	fmt.Fprintln(cmd.OutOrStdout(), "start the daemon with `rembrandtd serve`, then use the other commands")
	return nil
}
