package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
)

// ConflictReport is the human-gate payload for a textual conflict (§7):
// the raw git conflict markers plus a clean unified hunk view per path.
type ConflictReport struct {
	Paths  []string
	Hunks  map[string]string // path -> unified diff, mainline side vs. agent side
}

// renderConflictHunks reads each conflicting path's current (conflict
// marker-bearing) content in dir and diffs it against the same path on the
// agent branch, giving the operator a clean hunk view alongside the raw
// markers already on disk.
func renderConflictHunks(ctx context.Context, dir, branch string, paths []string) map[string]string {
	hunks := make(map[string]string, len(paths))
	for _, path := range paths {
		mainline, err := os.ReadFile(dir + "/" + path)
		if err != nil {
			continue
		}
		agentSide, err := git(ctx, dir, "show", branch+":"+path)
		if err != nil {
			continue
		}
		edits := myers.ComputeEdits(gotextdiff.URI(path), string(mainline), agentSide)
		unified := gotextdiff.ToUnified("mainline", branch, string(mainline), edits)
		hunks[path] = fmt.Sprint(unified)
	}
	return hunks
}
