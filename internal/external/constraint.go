package external

import "context"

// ConstraintCheck runs an operator-configured program in the mainline
// working copy as a pre-merge gate (§4.5.1 Stage 1c): any non-zero exit is
// a human_gate("constraint failed").
type ConstraintCheck struct {
	Command []string
}

// Run executes the constraint program with dir as its working directory.
// A zero Command slice means no constraint is configured and always
// passes.
func (c ConstraintCheck) Run(ctx context.Context, dir string) (Result, error) {
	if len(c.Command) == 0 {
		return Result{ExitCode: 0}, nil
	}
	return run(ctx, dir, c.Command[0], c.Command[1:]...)
}
