// Package worktree implements the isolation layer: deterministic creation,
// listing, and lifecycle of branched filesystem checkouts that all share one
// git object database (§4.4). Every mutation shells out to the `git`
// binary — no pack example links a Go git library, and the teacher's own
// external-tool pattern (invoke, capture output, wrap the error) is reused
// here verbatim.
package worktree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one tracked worktree (§3: Worktree record).
type Record struct {
	ID        string
	Path      string
	Branch    string
	Base      string
	CreatedAt time.Time
}

// ErrorKind tags the four shapes WorktreeError's teachers pack describes
// (§7): Exists, BaseMissing, Dirty, FSError.
type ErrorKind int

const (
	ErrExists ErrorKind = iota
	ErrBaseMissing
	ErrDirty
	ErrFS
)

// Error is returned by every Manager mutation that fails in a known way.
type Error struct {
	Kind ErrorKind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	var kind string
	switch e.Kind {
	case ErrExists:
		kind = "exists"
	case ErrBaseMissing:
		kind = "base missing"
	case ErrDirty:
		kind = "dirty"
	default:
		kind = "fs error"
	}
	if e.Err != nil {
		return fmt.Sprintf("worktree %s: %s: %v", e.ID, kind, e.Err)
	}
	return fmt.Sprintf("worktree %s: %s", e.ID, kind)
}

func (e *Error) Unwrap() error { return e.Err }

// GcReport is the result of a reconciliation sweep (§4.4).
type GcReport struct {
	Pruned  []string // ids whose backing directory is gone
	Orphans []string // directories present but not tracked
}

// Manager owns the workspace's worktree registry. The registry is a
// wk8/go-ordered-map so List() reflects creation order without a secondary
// sort — the round-trip invariant in §4.4 ("path and branch unique, list is
// stable") falls out of that for free.
type Manager struct {
	mu        sync.Mutex
	repoRoot  string // the mainline checkout git commands are run against
	agentsDir string // <workspace_root>/agents
	records   *orderedmap.OrderedMap[string, Record]
	branchOf  map[string]struct{} // reverse set of branch names in use
}

// New creates a Manager rooted at repoRoot, a git checkout of the mainline
// repository. Worktrees are created under <workspaceRoot>/agents.
func New(repoRoot, workspaceRoot string) *Manager {
	return &Manager{
		repoRoot:  repoRoot,
		agentsDir: filepath.Join(workspaceRoot, "agents"),
		records:   orderedmap.New[string, Record](),
		branchOf:  make(map[string]struct{}),
	}
}

// BranchName returns the canonical branch name for a worktree id (§4.4).
func BranchName(id string) string { return "rembrandt/" + id }

// Path returns the canonical on-disk path for a worktree id (§4.4).
func (m *Manager) Path(id string) string { return filepath.Join(m.agentsDir, id) }

// ResolveBranch returns the branch name backing a tracked worktree id.
func (m *Manager) ResolveBranch(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records.Get(id)
	if !ok {
		return "", &Error{Kind: ErrFS, ID: id, Err: errors.New("not tracked")}
	}
	return rec.Branch, nil
}

// Create forks branch rembrandt/<id> from baseBranch's current tip and
// materializes a checkout at the canonical path (§4.4).
func (m *Manager) Create(ctx context.Context, id, baseBranch string) (Record, error) {
	m.mu.Lock()
	if _, exists := m.records.Get(id); exists {
		m.mu.Unlock()
		return Record{}, &Error{Kind: ErrExists, ID: id, Err: fmt.Errorf("id already registered")}
	}
	branch := BranchName(id)
	if _, taken := m.branchOf[branch]; taken {
		m.mu.Unlock()
		return Record{}, &Error{Kind: ErrExists, ID: id, Err: fmt.Errorf("branch %s already in use", branch)}
	}
	path := m.Path(id)
	if fi, err := os.Stat(path); err == nil {
		m.mu.Unlock()
		if fi.IsDir() {
			return Record{}, &Error{Kind: ErrExists, ID: id, Err: fmt.Errorf("path %s already exists", path)}
		}
	}
	m.mu.Unlock()

	if !m.branchExists(ctx, baseBranch) {
		return Record{}, &Error{Kind: ErrBaseMissing, ID: id, Err: fmt.Errorf("base branch %q not found", baseBranch)}
	}

	if err := os.MkdirAll(m.agentsDir, 0o755); err != nil {
		return Record{}, &Error{Kind: ErrFS, ID: id, Err: err}
	}

	out, err := m.git(ctx, "worktree", "add", "-b", branch, path, baseBranch)
	if err != nil {
		if isDirtyWorktreeError(out) {
			return Record{}, &Error{Kind: ErrDirty, ID: id, Err: err}
		}
		return Record{}, &Error{Kind: ErrFS, ID: id, Err: fmt.Errorf("%w: %s", err, out)}
	}

	rec := Record{ID: id, Path: path, Branch: branch, Base: baseBranch, CreatedAt: time.Now()}

	m.mu.Lock()
	m.records.Set(id, rec)
	m.branchOf[branch] = struct{}{}
	m.mu.Unlock()

	return rec, nil
}

// List returns every tracked worktree in creation order.
func (m *Manager) List() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for pair := m.records.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// isTracked reports whether id is a known worktree directory name.
func (m *Manager) isTracked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records.Get(id)
	return ok
}

// Remove deletes the checkout and prunes the registration. With force=false,
// a dirty working tree is refused.
func (m *Manager) Remove(ctx context.Context, id string, force bool) error {
	m.mu.Lock()
	rec, ok := m.records.Get(id)
	m.mu.Unlock()
	if !ok {
		return &Error{Kind: ErrFS, ID: id, Err: errors.New("not tracked")}
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, rec.Path)

	if out, err := m.git(ctx, args...); err != nil {
		if !force && isDirtyWorktreeError(out) {
			return &Error{Kind: ErrDirty, ID: id, Err: err}
		}
		return &Error{Kind: ErrFS, ID: id, Err: fmt.Errorf("%w: %s", err, out)}
	}

	m.mu.Lock()
	m.records.Delete(id)
	delete(m.branchOf, rec.Branch)
	m.mu.Unlock()
	return nil
}

// Gc reconciles recorded worktrees with on-disk reality (§4.4): any
// registered worktree whose directory is gone is pruned from the registry;
// any directory present under agentsDir but not tracked is reported as an
// orphan for human inspection, never removed automatically.
func (m *Manager) Gc(ctx context.Context) (GcReport, error) {
	_, _ = m.git(ctx, "worktree", "prune")

	m.mu.Lock()
	var toPrune []string
	tracked := make(map[string]struct{}, m.records.Len())
	for pair := m.records.Oldest(); pair != nil; pair = pair.Next() {
		tracked[filepath.Base(pair.Value.Path)] = struct{}{}
		if _, err := os.Stat(pair.Value.Path); os.IsNotExist(err) {
			toPrune = append(toPrune, pair.Key)
		}
	}
	for _, id := range toPrune {
		if rec, ok := m.records.Get(id); ok {
			delete(m.branchOf, rec.Branch)
		}
		m.records.Delete(id)
	}
	m.mu.Unlock()

	var orphans []string
	entries, err := os.ReadDir(m.agentsDir)
	if err != nil && !os.IsNotExist(err) {
		return GcReport{Pruned: toPrune}, &Error{Kind: ErrFS, ID: "", Err: err}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := tracked[e.Name()]; !ok {
			orphans = append(orphans, filepath.Join(m.agentsDir, e.Name()))
		}
	}

	return GcReport{Pruned: toPrune, Orphans: orphans}, nil
}

// Provisioner adapts a Manager to session.WorktreeProvisioner's narrower,
// context-free signature.
type Provisioner struct{ M *Manager }

// Create allocates a worktree for a newly spawned session.
func (p Provisioner) Create(id, baseBranch string) (string, string, error) {
	rec, err := p.M.Create(context.Background(), id, baseBranch)
	if err != nil {
		return "", "", err
	}
	return rec.Path, rec.Branch, nil
}

func (m *Manager) branchExists(ctx context.Context, branch string) bool {
	_, err := m.git(ctx, "rev-parse", "--verify", branch)
	return err == nil
}

func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoRoot
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func isDirtyWorktreeError(output string) bool {
	return bytes.Contains([]byte(output), []byte("contains modified or untracked files")) ||
		bytes.Contains([]byte(output), []byte("is dirty"))
}
