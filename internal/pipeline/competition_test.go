package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rembrandt-dev/rembrandt/internal/external"
	"github.com/rembrandt-dev/rembrandt/internal/session"
	"github.com/rembrandt-dev/rembrandt/internal/worktree"
)

// stubSpawner is a minimal SessionSpawner for competition tests: it
// provisions a real worktree/branch per spawn (via the given
// worktree.Manager) but never forks a pty process — statuses are set
// directly by the test.
type stubSpawner struct {
	mu       sync.Mutex
	wt       *worktree.Manager
	base     string
	sessions map[string]*session.Info
	writes   map[string][]byte
	killed   map[string]bool
	n        int
}

func newStubSpawner(wt *worktree.Manager, base string) *stubSpawner {
	return &stubSpawner{wt: wt, base: base, sessions: map[string]*session.Info{}, writes: map[string][]byte{}, killed: map[string]bool{}}
}

func (s *stubSpawner) Spawn(spec session.SpawnSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	id := spec.AgentLabel
	path, branch, err := worktree.Provisioner{M: s.wt}.Create(id, spec.BaseBranch)
	if err != nil {
		return "", err
	}
	s.sessions[id] = &session.Info{ID: id, AgentID: spec.AgentLabel, WorkDir: path, Branch: branch, Status: session.Running(), CreatedAt: time.Now()}
	return id, nil
}

func (s *stubSpawner) Get(id string) (session.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sessions[id]
	if !ok {
		return session.Info{}, &session.NotFoundError{SessionID: id}
	}
	return *info, nil
}

func (s *stubSpawner) Write(id string, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[id] = append(s.writes[id], b...)
	return nil
}

func (s *stubSpawner) Kill(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killed[id] = true
	if info, ok := s.sessions[id]; ok {
		info.Status = session.Exited(0)
	}
	return nil
}

func (s *stubSpawner) setExited(id string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id].Status = session.Exited(code)
}

// commitInWorktree adds filename with content and commits it in a
// competitor's own worktree checkout (already on its agent branch).
func commitInWorktree(t *testing.T, worktreePath, filename, content string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = worktreePath
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	require.NoError(t, os.WriteFile(filepath.Join(worktreePath, filename), []byte(content), 0o644))
	run("add", filename)
	run("commit", "-q", "-m", "competitor commit")
}

func setupCompetitionFixture(t *testing.T) (repo string, wt *worktree.Manager, spawner *stubSpawner, p *Pipeline) {
	repo = initRepo(t)
	wt = worktree.New(repo, filepath.Join(repo, ".rembrandt"))
	spawner = newStubSpawner(wt, "main")
	p = New(Options{
		RepoRoot:    repo,
		BaseBranch:  "main",
		Worktrees:   wt,
		TypeChecker: external.TypeChecker{Command: []string{"true"}},
		TestRunner:  external.TestRunner{Command: []string{"true"}},
	})
	return repo, wt, spawner, p
}

func TestCompetition_MetricsEndToEnd(t *testing.T) {
	_, wt, spawner, p := setupCompetitionFixture(t)

	comp := NewCompetition("comp-1", "implement the thing", EvaluatorMetrics, 30*time.Minute, "main", spawner, wt, p, external.ModelEvaluator{}, CompetitionOptions{RequireCommit: true}, nil)

	err := comp.Spawn([]string{"alpha", "beta"}, func(label string) []string { return []string{"true"} })
	require.NoError(t, err)
	require.Equal(t, Running, comp.State())

	// Both competitors commit a one-line change and finish together; exactly
	// one is merged as the winner and every other worktree is removed.
	for _, c := range comp.Competitors() {
		commitInWorktree(t, c.WorktreePath, "result.txt", c.AgentLabel+" result\n")
		spawner.setExited(c.SessionID, 0)
	}

	done, err := comp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, Evaluating, comp.State())

	require.NoError(t, comp.Evaluate(context.Background()))
	require.Equal(t, Merging, comp.State())
	require.NotEmpty(t, comp.Ranking())

	result, err := comp.Merge(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.CommitSHA)
	require.Equal(t, Completed, comp.State())

	winners := 0
	for _, c := range comp.Competitors() {
		if c.IsWinner {
			winners++
		} else {
			require.NoDirExists(t, c.WorktreePath)
		}
	}
	require.Equal(t, 1, winners)
}

func TestCompetition_SpawnFailurePropagatesToFailed(t *testing.T) {
	_, wt, spawner, p := setupCompetitionFixture(t)
	comp := NewCompetition("comp-2", "p", EvaluatorMetrics, 30*time.Minute, "no-such-base", spawner, wt, p, external.ModelEvaluator{}, CompetitionOptions{}, nil)

	err := comp.Spawn([]string{"alpha"}, func(label string) []string { return []string{"true"} })
	require.Error(t, err)
	require.Equal(t, Failed, comp.State())
}

// TestCompetition_SpawnFailureCleansUpEarlierWorktrees covers §4.5.2
// "Cleanup": a later competitor's spawn failure must not orphan the
// worktree an earlier competitor already got.
func TestCompetition_SpawnFailureCleansUpEarlierWorktrees(t *testing.T) {
	_, wt, spawner, p := setupCompetitionFixture(t)
	comp := NewCompetition("comp-2b", "p", EvaluatorMetrics, 30*time.Minute, "main", spawner, wt, p, external.ModelEvaluator{}, CompetitionOptions{}, nil)

	// The second "alpha" label collides with the first's worktree/branch id,
	// so its spawn fails after the first has already been provisioned.
	err := comp.Spawn([]string{"alpha", "alpha"}, func(label string) []string { return []string{"true"} })
	require.Error(t, err)
	require.Equal(t, Failed, comp.State())

	competitors := comp.Competitors()
	require.Len(t, competitors, 1)
	require.NoDirExists(t, competitors[0].WorktreePath)
}

// TestCompetition_EvaluateNoPassingCleansUpWorktrees covers the Failed
// transition out of Evaluate when every competitor is gated out.
func TestCompetition_EvaluateNoPassingCleansUpWorktrees(t *testing.T) {
	_, wt, spawner, p := setupCompetitionFixture(t)
	comp := NewCompetition("comp-4", "p", EvaluatorMetrics, 30*time.Minute, "main", spawner, wt, p, external.ModelEvaluator{}, CompetitionOptions{RequireCommit: false}, nil)

	require.NoError(t, comp.Spawn([]string{"alpha"}, func(label string) []string { return []string{"true"} }))
	c := comp.Competitors()[0]
	// No commit is ever made on alpha's branch, so it finishes "completed"
	// (RequireCommit is false) but fails the pre-merge "ahead of mainline"
	// gate during Evaluate, leaving nothing in the passing set.
	spawner.setExited(c.SessionID, 0)

	done, err := comp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, Evaluating, comp.State())

	err = comp.Evaluate(context.Background())
	require.Error(t, err)
	require.Equal(t, Failed, comp.State())
	require.NoDirExists(t, c.WorktreePath)
}

// TestCompetition_MergeNoMergeableCleansUpWorktrees covers the Failed
// transition at the end of Merge when every ranked candidate gates.
func TestCompetition_MergeNoMergeableCleansUpWorktrees(t *testing.T) {
	_, wt, spawner, p := setupCompetitionFixture(t)
	comp := NewCompetition("comp-5", "p", EvaluatorMetrics, 30*time.Minute, "main", spawner, wt, p, external.ModelEvaluator{}, CompetitionOptions{RequireCommit: true}, nil)

	require.NoError(t, comp.Spawn([]string{"alpha", "beta"}, func(label string) []string { return []string{"true"} }))
	competitors := comp.Competitors()
	for _, c := range competitors {
		commitInWorktree(t, c.WorktreePath, c.AgentLabel+".txt", c.AgentLabel+" result\n")
		spawner.setExited(c.SessionID, 0)
	}

	done, err := comp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, Evaluating, comp.State())

	require.NoError(t, comp.Evaluate(context.Background()))
	require.Equal(t, Merging, comp.State())

	// Simulate mainline's test suite regressing between Evaluate and Merge
	// (e.g. another merge landed in between): every candidate now gates on
	// the same failing stage, so none is mergeable.
	p.opts.TestRunner = external.TestRunner{Command: []string{"false"}}

	_, err = comp.Merge(context.Background())
	require.Error(t, err)
	require.Equal(t, Failed, comp.State())
	for _, c := range competitors {
		require.NoDirExists(t, c.WorktreePath)
	}
}

func TestCompetition_CancelPreemptsRunning(t *testing.T) {
	_, wt, spawner, p := setupCompetitionFixture(t)
	comp := NewCompetition("comp-3", "p", EvaluatorMetrics, 30*time.Minute, "main", spawner, wt, p, external.ModelEvaluator{}, CompetitionOptions{}, nil)

	require.NoError(t, comp.Spawn([]string{"alpha"}, func(label string) []string { return []string{"true"} }))
	comp.Cancel()
	require.Equal(t, Cancelled, comp.State())
	require.True(t, spawner.killed[comp.Competitors()[0].SessionID])

	// Cancel is a no-op from a terminal state.
	comp.Cancel()
	require.Equal(t, Cancelled, comp.State())
}
