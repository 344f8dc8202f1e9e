package external

import "context"

// TypeChecker runs a repository-declared type-check command against the
// merged mainline working copy (§4.5.1 Stage 3).
type TypeChecker struct {
	Command []string
}

func (t TypeChecker) Run(ctx context.Context, dir string) (Result, error) {
	if len(t.Command) == 0 {
		return Result{ExitCode: 0}, nil
	}
	return run(ctx, dir, t.Command[0], t.Command[1:]...)
}

// TestRunner runs a repository-declared test command (§4.5.1 Stage 4).
type TestRunner struct {
	Command []string
}

func (t TestRunner) Run(ctx context.Context, dir string) (Result, error) {
	if len(t.Command) == 0 {
		return Result{ExitCode: 0}, nil
	}
	return run(ctx, dir, t.Command[0], t.Command[1:]...)
}
