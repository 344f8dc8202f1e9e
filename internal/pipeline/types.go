// Package pipeline implements the single-agent merge pipeline and the
// competition orchestrator on top of it (§4.5). Every stage is an explicit
// suspension point (a subprocess invocation); the pipeline never holds a
// session or worktree lock across one.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// GateReason tags the known, operator-visible conditions a MergeGate can
// carry (§7).
type GateReason int

const (
	TextualConflict GateReason = iota
	TypeCheckFailed
	TestsFailed
	DependenciesUnsatisfied
	ConstraintFailed
	// NotAheadOfMainline is not one of §7's named taxonomy entries; it covers
	// Stage 1's branch-ahead precondition, which the spec also calls a
	// human_gate but doesn't assign a dedicated reason code.
	NotAheadOfMainline
)

func (r GateReason) String() string {
	switch r {
	case TextualConflict:
		return "textual conflict"
	case TypeCheckFailed:
		return "type check failed"
	case TestsFailed:
		return "tests failed"
	case DependenciesUnsatisfied:
		return "dependencies unsatisfied"
	case ConstraintFailed:
		return "constraint failed"
	case NotAheadOfMainline:
		return "branch not ahead of mainline"
	default:
		return "unknown"
	}
}

// MergeGate is an expected, operator-visible stage failure (§7): the
// mainline is left untouched and the agent worktree is preserved.
type MergeGate struct {
	Stage         string
	Reason        GateReason
	Output        string // captured subprocess output, truncated
	WorktreePath  string
	ConflictPaths []string
	Hint          string
}

func (g *MergeGate) Error() string {
	msg := fmt.Sprintf("merge gate at %s: %s", g.Stage, g.Reason)
	if len(g.ConflictPaths) > 0 {
		msg += fmt.Sprintf(" (conflicting paths: %s)", strings.Join(g.ConflictPaths, ", "))
	}
	if g.WorktreePath != "" {
		msg += "; worktree preserved at " + g.WorktreePath
	}
	if g.Hint != "" {
		msg += "; hint: " + g.Hint
	}
	if g.Output != "" {
		msg += "\n" + g.Output
	}
	return msg
}

// hintFor templates an operator-facing hint per gate reason (§9
// "Structured human-gate reports").
func hintFor(reason GateReason, conflictPaths []string) string {
	switch reason {
	case TextualConflict:
		return fmt.Sprintf("resolve conflicts in %d file(s) on the agent branch, or rebase onto the latest mainline", len(conflictPaths))
	case TypeCheckFailed:
		return "fix the type-check failures shown above, then re-run merge"
	case TestsFailed:
		return "fix the failing tests shown above, then re-run merge"
	case DependenciesUnsatisfied:
		return "merge this session's declared task dependencies first"
	case ConstraintFailed:
		return "the configured constraint check rejected this branch; inspect its output above"
	default:
		return ""
	}
}

// PipelineFatal is an unexpected failure (§7), as opposed to an expected
// MergeGate. The pipeline keeps no acknowledgement state for it: later
// merges are not blocked by an earlier PipelineFatal.
type PipelineFatal struct {
	Stage string
	Err   error
}

func (f *PipelineFatal) Error() string {
	return fmt.Sprintf("pipeline fatal at %s: %v", f.Stage, f.Err)
}

func (f *PipelineFatal) Unwrap() error { return f.Err }

// ValidationResult is §3's "Validation result".
type ValidationResult struct {
	TypeCheckPassed bool
	TestsPassed     bool
	TestCount       *int
	TestFailures    *int
	Duration        time.Duration
}

// DiffStats is §3's "diff statistics": files changed, lines added/removed.
type DiffStats struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

// Candidate is one (session, branch, worktree) tuple eligible for merge
// (§4.5.1).
type Candidate struct {
	SessionID    string
	TaskID       string // empty if the session has no declared task
	Branch       string
	WorktreePath string
	CreatedAt    time.Time
}

// MergeResult is returned on a clean Stage 1-5 pass.
type MergeResult struct {
	CommitSHA string
	Stats     DiffStats
}
