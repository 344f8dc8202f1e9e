package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeChecker_EmptyCommandAlwaysPasses(t *testing.T) {
	res, err := TypeChecker{}.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.True(t, res.Passed())
}

func TestTypeChecker_RunsConfiguredCommand(t *testing.T) {
	res, err := TypeChecker{Command: []string{"sh", "-c", "exit 1"}}.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.False(t, res.Passed())
}

func TestTestRunner_RunsConfiguredCommand(t *testing.T) {
	res, err := TestRunner{Command: []string{"true"}}.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.True(t, res.Passed())
}

func TestConstraintCheck_EmptyCommandAlwaysPasses(t *testing.T) {
	res, err := ConstraintCheck{}.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.True(t, res.Passed())
}

func TestConstraintCheck_NonZeroExitGates(t *testing.T) {
	res, err := ConstraintCheck{Command: []string{"false"}}.Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.False(t, res.Passed())
}
