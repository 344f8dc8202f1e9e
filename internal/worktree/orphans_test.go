package worktree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrphanWatcher_FlagsUntrackedDirectory(t *testing.T) {
	repo := initRepo(t)
	m := New(repo, filepath.Join(repo, ".rembrandt"))
	require.NoError(t, os.MkdirAll(m.agentsDir, 0o755))

	ow, err := WatchForOrphans(m, nil)
	require.NoError(t, err)
	defer ow.Close()

	stray := filepath.Join(m.agentsDir, "stray")
	require.NoError(t, os.Mkdir(stray, 0o755))

	require.Eventually(t, func() bool {
		for _, h := range ow.Hints() {
			if h == stray {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestOrphanWatcher_IgnoresTrackedDirectory(t *testing.T) {
	repo := initRepo(t)
	m := New(repo, filepath.Join(repo, ".rembrandt"))
	require.NoError(t, os.MkdirAll(m.agentsDir, 0o755))

	ow, err := WatchForOrphans(m, nil)
	require.NoError(t, err)
	defer ow.Close()

	_, err = m.Create(t.Context(), "alpha", "main")
	require.NoError(t, err)

	// Give the watcher goroutine a chance to observe the create event; since
	// "alpha" is tracked it must never show up as a hint.
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, ow.Hints())
}

func TestOrphanWatcher_ClearResetsHints(t *testing.T) {
	repo := initRepo(t)
	m := New(repo, filepath.Join(repo, ".rembrandt"))
	require.NoError(t, os.MkdirAll(m.agentsDir, 0o755))

	ow, err := WatchForOrphans(m, nil)
	require.NoError(t, err)
	defer ow.Close()

	require.NoError(t, os.Mkdir(filepath.Join(m.agentsDir, "stray"), 0o755))
	require.Eventually(t, func() bool { return len(ow.Hints()) > 0 }, time.Second, 10*time.Millisecond)

	ow.Clear()
	require.Empty(t, ow.Hints())
}

func TestOrphanWatcher_NilSafe(t *testing.T) {
	var ow *OrphanWatcher
	require.Empty(t, ow.Hints())
	ow.Clear()
	require.NoError(t, ow.Close())
}
