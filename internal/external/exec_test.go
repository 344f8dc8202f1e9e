package external

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_CapturesOutputAndZeroExit(t *testing.T) {
	res, err := run(context.Background(), t.TempDir(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	require.True(t, res.Passed())
	require.Contains(t, res.Output, "hello")
}

func TestRun_NonZeroExitIsNotAGoError(t *testing.T) {
	res, err := run(context.Background(), t.TempDir(), "sh", "-c", "echo boom >&2; exit 3")
	require.NoError(t, err)
	require.False(t, res.Passed())
	require.Equal(t, 3, res.ExitCode)
	require.Contains(t, res.Output, "boom")
}

func TestRun_MissingBinaryIsAnError(t *testing.T) {
	_, err := run(context.Background(), t.TempDir(), "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
}

func TestTruncate_LeavesShortStringsAlone(t *testing.T) {
	require.Equal(t, "short", truncate("short", 100))
}

func TestTruncate_BoundsLongOutput(t *testing.T) {
	long := strings.Repeat("a", 100)
	out := truncate(long, 10)
	require.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	require.Contains(t, out, "truncated")
}
