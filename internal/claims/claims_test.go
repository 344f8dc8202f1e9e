package claims

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rembrandt-dev/rembrandt/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestRegistry_AcquireAndList(t *testing.T) {
	r := newTestRegistry(t)

	claim, err := r.Acquire("pkg/foo.go", "agent-a1b2")
	require.NoError(t, err)
	require.Equal(t, "pkg/foo.go", claim.Path)
	require.NotEmpty(t, claim.ClaimID)

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "agent-a1b2", list[0].SessionID)
}

func TestRegistry_AcquireByOtherSessionConflicts(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Acquire("pkg/foo.go", "agent-a1b2")
	require.NoError(t, err)

	_, err = r.Acquire("pkg/foo.go", "agent-c3d4")
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, "agent-a1b2", conflict.HolderID)
	require.Equal(t, "agent-c3d4", conflict.Requester)
}

func TestRegistry_ReacquireBySameSessionSucceeds(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Acquire("pkg/foo.go", "agent-a1b2")
	require.NoError(t, err)
	_, err = r.Acquire("pkg/foo.go", "agent-a1b2")
	require.NoError(t, err)

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRegistry_ReleaseIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Release("pkg/never-claimed.go"))

	_, err := r.Acquire("pkg/foo.go", "agent-a1b2")
	require.NoError(t, err)
	require.NoError(t, r.Release("pkg/foo.go"))
	require.NoError(t, r.Release("pkg/foo.go"))

	list, err := r.List()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRegistry_ReleaseAllBySession(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Acquire("pkg/a.go", "agent-a1b2")
	require.NoError(t, err)
	_, err = r.Acquire("pkg/b.go", "agent-a1b2")
	require.NoError(t, err)
	_, err = r.Acquire("pkg/c.go", "agent-c3d4")
	require.NoError(t, err)

	require.NoError(t, r.ReleaseAll("agent-a1b2"))

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "agent-c3d4", list[0].SessionID)
}
