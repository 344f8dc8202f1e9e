package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rembrandt-dev/rembrandt/pkg/config"
)

// workspace resolves the on-disk layout described in §6's workspace layout:
// <repo>/.rembrandt/{agents,state.db,logs,rembrandt.yaml,rembrandtd.sock}.
type workspace struct {
	repoRoot string
	root     string
}

func resolveWorkspace(cmd *cobra.Command) (*workspace, error) {
	repoFlag, _ := cmd.Flags().GetString("repo")
	repoRoot, err := filepath.Abs(repoFlag)
	if err != nil {
		return nil, fmt.Errorf("resolve repo path: %w", err)
	}
	return &workspace{repoRoot: repoRoot, root: filepath.Join(repoRoot, ".rembrandt")}, nil
}

func (w *workspace) statePath() string  { return filepath.Join(w.root, "state.db") }
func (w *workspace) logsDir() string    { return filepath.Join(w.root, "logs") }
func (w *workspace) agentsDir() string  { return filepath.Join(w.root, "agents") }
func (w *workspace) configPath() string { return filepath.Join(w.root, "rembrandt.yaml") }
func (w *workspace) socketPath() string { return filepath.Join(w.root, "rembrandtd.sock") }

func (w *workspace) exists() bool {
	_, err := os.Stat(w.statePath())
	return err == nil
}

func (w *workspace) requireInitialized() error {
	if !w.exists() {
		return fmt.Errorf("no rembrandt workspace at %s (run `rembrandtd init` first)", w.root)
	}
	return nil
}

func (w *workspace) loadConfig() (*config.Config, error) {
	return config.Load(w.configPath())
}
