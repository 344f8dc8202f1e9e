// Package external implements the thin adapters over collaborators that
// live outside the orchestrator's address space (§6): a task tracker, a
// constraint-check gate, repository-declared type-check/test commands, and
// the model evaluator strategy's scoring program. Every invocation is a
// separate child process, captured and truncated, never linked into the
// orchestrator (§9 "External-program orchestration").
package external

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// maxCapturedOutput bounds how much of a subprocess's combined output is
// kept for a gate report (§7: "captured output, truncated to a bounded
// length").
const maxCapturedOutput = 16 * 1024

// Result is the outcome of one external invocation.
type Result struct {
	ExitCode int
	Output   string // combined stdout+stderr, truncated to maxCapturedOutput
}

// Passed reports whether the program exited zero.
func (r Result) Passed() bool { return r.ExitCode == 0 }

// run invokes name with args in dir, capturing combined output. It never
// returns an error for a non-zero exit — that's a normal Result with a
// non-zero ExitCode — only for failures to start the process at all.
func run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := truncate(buf.String(), maxCapturedOutput)

	if err == nil {
		return Result{ExitCode: 0, Output: out}, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return Result{ExitCode: exitErr.ExitCode(), Output: out}, nil
	}
	return Result{}, fmt.Errorf("run %s: %w", name, err)
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...(truncated)"
}
