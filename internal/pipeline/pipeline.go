package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rembrandt-dev/rembrandt/internal/claims"
	"github.com/rembrandt-dev/rembrandt/internal/external"
	"github.com/rembrandt-dev/rembrandt/internal/worktree"
)

// Options configures a Pipeline. Every external collaborator is optional;
// a zero value behaves as "no check configured" and always passes, except
// TaskTracker which defaults to external.NoopTaskTracker.
type Options struct {
	RepoRoot    string // the mainline checkout pipeline stages run against
	BaseBranch  string
	TaskTracker external.TaskTracker
	Constraint  external.ConstraintCheck
	TypeChecker external.TypeChecker
	TestRunner  external.TestRunner
	Worktrees   *worktree.Manager
	Claims      *claims.Registry
	Logger      *logrus.Logger
}

// Pipeline runs the single-agent merge pipeline from §4.5.1. Mainline HEAD
// is a single mutable resource (§5): mainlineLock serializes every merge
// attempt regardless of base branch (§9 Open Question resolution #3).
type Pipeline struct {
	opts         Options
	mainlineLock sync.Mutex
	logger       *logrus.Logger
}

func New(opts Options) *Pipeline {
	if opts.TaskTracker == nil {
		opts.TaskTracker = external.NoopTaskTracker{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(noopWriter{})
	}
	return &Pipeline{opts: opts, logger: logger}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Merge runs Stages 1-5 against cand, serialized on the mainline lock. A
// nil error with a non-nil *MergeResult means a clean pass; errors are
// always *MergeGate or *PipelineFatal (§7).
func (p *Pipeline) Merge(ctx context.Context, cand Candidate) (*MergeResult, error) {
	p.mainlineLock.Lock()
	defer p.mainlineLock.Unlock()

	if err := p.stage1PreMerge(ctx, cand); err != nil {
		return nil, err
	}

	stats, _ := numstat(ctx, p.opts.RepoRoot, p.opts.BaseBranch, cand.Branch)

	conflicts, err := mergeNoCommit(ctx, p.opts.RepoRoot, cand.Branch)
	if len(conflicts) > 0 {
		hunks := renderConflictHunks(ctx, p.opts.RepoRoot, cand.Branch, conflicts)
		_ = abortMerge(ctx, p.opts.RepoRoot)
		return nil, &MergeGate{
			Stage:         "merge",
			Reason:        TextualConflict,
			ConflictPaths: conflicts,
			WorktreePath:  cand.WorktreePath,
			Hint:          hintFor(TextualConflict, conflicts),
			Output:        summarizeHunks(hunks),
		}
	}
	if err != nil {
		return nil, &PipelineFatal{Stage: "merge", Err: err}
	}

	validation, gateErr, fatalErr := p.validateMerged(ctx, cand)
	if fatalErr != nil {
		_ = abortMerge(ctx, p.opts.RepoRoot)
		return nil, fatalErr
	}
	if gateErr != nil {
		_ = abortMerge(ctx, p.opts.RepoRoot)
		return nil, gateErr
	}
	_ = validation

	sha, err := commitMerge(ctx, p.opts.RepoRoot, cand.SessionID, cand.Branch)
	if err != nil {
		_ = abortMerge(ctx, p.opts.RepoRoot)
		return nil, &PipelineFatal{Stage: "commit", Err: err}
	}

	if cand.TaskID != "" {
		if err := p.opts.TaskTracker.MarkDone(cand.TaskID, sha); err != nil {
			p.logger.WithError(err).WithField("task_id", cand.TaskID).Warn("mark task done failed")
		}
	}
	if p.opts.Claims != nil {
		if err := p.opts.Claims.ReleaseAll(cand.SessionID); err != nil {
			p.logger.WithError(err).WithField("session_id", cand.SessionID).Warn("release claims failed")
		}
	}
	if p.opts.Worktrees != nil {
		if err := p.opts.Worktrees.Remove(ctx, cand.SessionID, false); err != nil {
			p.logger.WithError(err).WithField("session_id", cand.SessionID).Warn("schedule worktree removal failed")
		}
	}

	return &MergeResult{CommitSHA: sha, Stats: stats}, nil
}

// stage1PreMerge implements §4.5.1 Stage 1: branch-ahead check, task
// dependency check, optional constraint check. Any failure is a
// human_gate.
func (p *Pipeline) stage1PreMerge(ctx context.Context, cand Candidate) error {
	ahead, err := branchAheadOfMainline(ctx, p.opts.RepoRoot, p.opts.BaseBranch, cand.Branch)
	if err != nil {
		return &PipelineFatal{Stage: "pre-merge", Err: err}
	}
	if !ahead {
		return &MergeGate{
			Stage:        "pre-merge",
			Reason:       NotAheadOfMainline,
			WorktreePath: cand.WorktreePath,
			Hint:         fmt.Sprintf("branch %s has no commits ahead of %s", cand.Branch, p.opts.BaseBranch),
		}
	}

	if cand.TaskID != "" {
		satisfied, err := p.opts.TaskTracker.DependenciesSatisfied(cand.TaskID)
		if err != nil {
			return &PipelineFatal{Stage: "pre-merge", Err: err}
		}
		if !satisfied {
			return &MergeGate{
				Stage:        "pre-merge",
				Reason:       DependenciesUnsatisfied,
				WorktreePath: cand.WorktreePath,
				Hint:         hintFor(DependenciesUnsatisfied, nil),
			}
		}
	}

	res, err := p.opts.Constraint.Run(ctx, p.opts.RepoRoot)
	if err != nil {
		return &PipelineFatal{Stage: "pre-merge", Err: err}
	}
	if !res.Passed() {
		return &MergeGate{
			Stage:        "pre-merge",
			Reason:       ConstraintFailed,
			Output:       res.Output,
			WorktreePath: cand.WorktreePath,
			Hint:         hintFor(ConstraintFailed, nil),
		}
	}
	return nil
}

// validateMerged runs Stages 3-4 (type check, tests) against the currently
// staged, uncommitted merge at p.opts.RepoRoot. Returns a ValidationResult
// on pass, a *MergeGate for an expected failure, or a *PipelineFatal for an
// unexpected one — never both a gate and a fatal.
func (p *Pipeline) validateMerged(ctx context.Context, cand Candidate) (*ValidationResult, *MergeGate, *PipelineFatal) {
	start := time.Now()

	tc, err := p.opts.TypeChecker.Run(ctx, p.opts.RepoRoot)
	if err != nil {
		return nil, nil, &PipelineFatal{Stage: "type-check", Err: err}
	}
	if !tc.Passed() {
		return nil, &MergeGate{
			Stage:        "type-check",
			Reason:       TypeCheckFailed,
			Output:       tc.Output,
			WorktreePath: cand.WorktreePath,
			Hint:         hintFor(TypeCheckFailed, nil),
		}, nil
	}

	tr, err := p.opts.TestRunner.Run(ctx, p.opts.RepoRoot)
	if err != nil {
		return nil, nil, &PipelineFatal{Stage: "test", Err: err}
	}
	if !tr.Passed() {
		return nil, &MergeGate{
			Stage:        "test",
			Reason:       TestsFailed,
			Output:       tr.Output,
			WorktreePath: cand.WorktreePath,
			Hint:         hintFor(TestsFailed, nil),
		}, nil
	}

	return &ValidationResult{
		TypeCheckPassed: true,
		TestsPassed:     true,
		Duration:        time.Since(start),
	}, nil, nil
}

// Validate runs Stages 1-4 without committing, used by the
// competition orchestrator's Evaluating phase (§4.5.2) to score
// competitors without touching mainline. It stages and then always aborts
// the merge, regardless of outcome.
func (p *Pipeline) Validate(ctx context.Context, cand Candidate) (*ValidationResult, *MergeGate, *PipelineFatal) {
	p.mainlineLock.Lock()
	defer p.mainlineLock.Unlock()

	if err := p.stage1PreMerge(ctx, cand); err != nil {
		if gate, ok := err.(*MergeGate); ok {
			return nil, gate, nil
		}
		return nil, nil, err.(*PipelineFatal)
	}

	conflicts, err := mergeNoCommit(ctx, p.opts.RepoRoot, cand.Branch)
	if len(conflicts) > 0 {
		_ = abortMerge(ctx, p.opts.RepoRoot)
		return nil, &MergeGate{Stage: "merge", Reason: TextualConflict, ConflictPaths: conflicts, WorktreePath: cand.WorktreePath, Hint: hintFor(TextualConflict, conflicts)}, nil
	}
	if err != nil {
		return nil, nil, &PipelineFatal{Stage: "merge", Err: err}
	}
	defer abortMerge(ctx, p.opts.RepoRoot)

	return p.validateMerged(ctx, cand)
}

// maxReportOutput mirrors internal/external's captured-output bound (§7)
// for the conflict report's rendered hunk summary.
const maxReportOutput = 16 * 1024

func summarizeHunks(hunks map[string]string) string {
	var out string
	for path, hunk := range hunks {
		out += fmt.Sprintf("--- %s ---\n%s\n", path, hunk)
	}
	if len(out) <= maxReportOutput {
		return out
	}
	return out[:maxReportOutput] + "\n...(truncated)"
}
