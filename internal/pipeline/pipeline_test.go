package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rembrandt-dev/rembrandt/internal/external"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("line one\n"), 0o644))
	run("add", "README")
	run("commit", "-q", "-m", "initial")
	return dir
}

func branchWithCommit(t *testing.T, dir, branch, filename, content string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("checkout", "-q", "-b", branch, "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
	run("add", filename)
	run("commit", "-q", "-m", "agent change on "+branch)
	run("checkout", "-q", "main")
}

func TestPipeline_Merge_CleanPass(t *testing.T) {
	repo := initRepo(t)
	branchWithCommit(t, repo, "rembrandt/beta", "note.txt", "ok\n")

	p := New(Options{
		RepoRoot:    repo,
		BaseBranch:  "main",
		TypeChecker: external.TypeChecker{Command: []string{"true"}},
		TestRunner:  external.TestRunner{Command: []string{"true"}},
	})

	result, err := p.Merge(context.Background(), Candidate{SessionID: "beta", Branch: "rembrandt/beta"})
	require.NoError(t, err)
	require.NotEmpty(t, result.CommitSHA)
	require.FileExists(t, filepath.Join(repo, "note.txt"))
}

func TestPipeline_Merge_GatedOnTextualConflict(t *testing.T) {
	repo := initRepo(t)
	branchWithCommit(t, repo, "rembrandt/gamma", "README", "line one\ngamma change\n")
	branchWithCommit(t, repo, "rembrandt/delta", "README", "line one\ndelta change\n")

	p := New(Options{
		RepoRoot:    repo,
		BaseBranch:  "main",
		TypeChecker: external.TypeChecker{Command: []string{"true"}},
		TestRunner:  external.TestRunner{Command: []string{"true"}},
	})

	_, err := p.Merge(context.Background(), Candidate{SessionID: "gamma", Branch: "rembrandt/gamma"})
	require.NoError(t, err)

	_, err = p.Merge(context.Background(), Candidate{SessionID: "delta", Branch: "rembrandt/delta"})
	require.Error(t, err)
	gate, ok := err.(*MergeGate)
	require.True(t, ok)
	require.Equal(t, TextualConflict, gate.Reason)
	require.Contains(t, gate.ConflictPaths, "README")

	// Mainline must be left exactly at the post-gamma state.
	out, err := exec.Command("git", "-C", repo, "status", "--porcelain").CombinedOutput()
	require.NoError(t, err)
	require.Empty(t, string(out))
}

func TestPipeline_Merge_GatedOnTypeCheckFailure(t *testing.T) {
	repo := initRepo(t)
	branchWithCommit(t, repo, "rembrandt/eps", "note.txt", "ok\n")

	p := New(Options{
		RepoRoot:    repo,
		BaseBranch:  "main",
		TypeChecker: external.TypeChecker{Command: []string{"false"}},
		TestRunner:  external.TestRunner{Command: []string{"true"}},
	})

	_, err := p.Merge(context.Background(), Candidate{SessionID: "eps", Branch: "rembrandt/eps"})
	require.Error(t, err)
	gate, ok := err.(*MergeGate)
	require.True(t, ok)
	require.Equal(t, TypeCheckFailed, gate.Reason)

	out, err := exec.Command("git", "-C", repo, "status", "--porcelain").CombinedOutput()
	require.NoError(t, err)
	require.Empty(t, string(out))
}

func TestPipeline_Merge_GatedOnTestFailure(t *testing.T) {
	repo := initRepo(t)
	branchWithCommit(t, repo, "rembrandt/zeta", "note.txt", "ok\n")

	p := New(Options{
		RepoRoot:    repo,
		BaseBranch:  "main",
		TypeChecker: external.TypeChecker{Command: []string{"true"}},
		TestRunner:  external.TestRunner{Command: []string{"false"}},
	})

	_, err := p.Merge(context.Background(), Candidate{SessionID: "zeta", Branch: "rembrandt/zeta"})
	require.Error(t, err)
	gate, ok := err.(*MergeGate)
	require.True(t, ok)
	require.Equal(t, TestsFailed, gate.Reason)
}

func TestPipeline_Merge_GatedWhenBranchNotAhead(t *testing.T) {
	repo := initRepo(t)
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("branch", "rembrandt/idle", "main")

	p := New(Options{RepoRoot: repo, BaseBranch: "main"})

	_, err := p.Merge(context.Background(), Candidate{SessionID: "idle", Branch: "rembrandt/idle"})
	require.Error(t, err)
	_, ok := err.(*MergeGate)
	require.True(t, ok)
}

func TestPipeline_Merge_GatedOnConstraintFailure(t *testing.T) {
	repo := initRepo(t)
	branchWithCommit(t, repo, "rembrandt/eta", "note.txt", "ok\n")

	p := New(Options{
		RepoRoot:   repo,
		BaseBranch: "main",
		Constraint: external.ConstraintCheck{Command: []string{"false"}},
	})

	_, err := p.Merge(context.Background(), Candidate{SessionID: "eta", Branch: "rembrandt/eta"})
	require.Error(t, err)
	gate, ok := err.(*MergeGate)
	require.True(t, ok)
	require.Equal(t, ConstraintFailed, gate.Reason)
}

func TestPipeline_Validate_NeverCommits(t *testing.T) {
	repo := initRepo(t)
	branchWithCommit(t, repo, "rembrandt/theta", "note.txt", "ok\n")

	p := New(Options{
		RepoRoot:    repo,
		BaseBranch:  "main",
		TypeChecker: external.TypeChecker{Command: []string{"true"}},
		TestRunner:  external.TestRunner{Command: []string{"true"}},
	})

	validation, gate, fatal := p.Validate(context.Background(), Candidate{SessionID: "theta", Branch: "rembrandt/theta"})
	require.Nil(t, gate)
	require.Nil(t, fatal)
	require.NotNil(t, validation)
	require.True(t, validation.TestsPassed)

	out, err := exec.Command("git", "-C", repo, "log", "--oneline", "main").CombinedOutput()
	require.NoError(t, err)
	require.NotContains(t, string(out), "merge:")

	status, err := exec.Command("git", "-C", repo, "status", "--porcelain").CombinedOutput()
	require.NoError(t, err)
	require.Empty(t, string(status))
}
