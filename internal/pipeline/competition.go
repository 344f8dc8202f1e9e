package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rembrandt-dev/rembrandt/internal/external"
	"github.com/rembrandt-dev/rembrandt/internal/session"
	"github.com/rembrandt-dev/rembrandt/internal/worktree"
)

// State is the competition lifecycle state machine (§4.5.2). Transitions
// are monotonic except Cancelled, which may enter from any non-terminal
// state.
type State int

const (
	Spawning State = iota
	Running
	Evaluating
	Merging
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Running:
		return "running"
	case Evaluating:
		return "evaluating"
	case Merging:
		return "merging"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Competitor is one competing agent within a Competition (§3).
type Competitor struct {
	SessionID    string
	AgentLabel   string
	AgentType    string
	Branch       string
	WorktreePath string

	completed bool
	// SpawnedAt and CompletedAt bound the agent's own elapsed wall time
	// (§4.5.2's "speed" term scenario: "A finishes at t=10s; B at t=15s").
	// This is deliberately distinct from Validation.Duration, which only
	// spans the shared type-check/test subprocess calls every competitor
	// runs identically — it says nothing about how long the agent itself
	// took.
	SpawnedAt   time.Time
	CompletedAt time.Time

	Validation *ValidationResult
	DiffStats  *DiffStats
	Diff       string

	IsWinner bool
}

// SessionSpawner is the narrow slice of internal/session.Manager a
// Competition needs; kept separate so tests can supply a stub instead of a
// full Manager, mirroring internal/session.WorktreeProvisioner's pattern.
type SessionSpawner interface {
	Spawn(spec session.SpawnSpec) (string, error)
	Get(id string) (session.Info, error)
	Write(id string, b []byte) error
	Kill(id string) error
}

// CompetitionOptions carries the Open Question #2 resolution: whether
// "completed" requires a commit on the branch in addition to exit zero.
type CompetitionOptions struct {
	RequireCommit bool `default:"true"`
}

// Competition runs §4.5.2's bounded parallel evaluation of N agents on the
// same prompt.
type Competition struct {
	mu sync.Mutex

	id         string
	prompt     string
	evaluator  EvaluatorStrategy
	deadline   time.Time
	baseBranch string

	deadlineDuration time.Duration

	state       State
	competitors []*Competitor

	sessions  SessionSpawner
	worktrees *worktree.Manager
	pipeline  *Pipeline
	model     external.ModelEvaluator
	opts      CompetitionOptions
	logger    *logrus.Logger

	ranking     []string // set once Evaluating completes, for the human strategy and reports
	humanWinner chan string
	winnerOnce  sync.Once
}

// NewCompetition constructs a Competition. The same base branch backs every
// competitor's worktree (§4.5.2 "Spawning").
func NewCompetition(id, prompt string, evaluatorStrategy EvaluatorStrategy, deadlineFromNow time.Duration, baseBranch string, sessions SessionSpawner, worktrees *worktree.Manager, p *Pipeline, model external.ModelEvaluator, opts CompetitionOptions, logger *logrus.Logger) *Competition {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(noopWriter{})
	}
	return &Competition{
		id:               id,
		prompt:           prompt,
		evaluator:        evaluatorStrategy,
		deadline:         time.Now().Add(deadlineFromNow),
		deadlineDuration: deadlineFromNow,
		baseBranch:       baseBranch,
		state:            Spawning,
		sessions:         sessions,
		worktrees:        worktrees,
		pipeline:         p,
		model:            model,
		opts:             opts,
		logger:           logger,
		humanWinner:      make(chan string, 1),
	}
}

func (c *Competition) ID() string   { return c.id }
func (c *Competition) State() State { c.mu.Lock(); defer c.mu.Unlock(); return c.state }

func (c *Competition) Competitors() []*Competitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Competitor, len(c.competitors))
	copy(out, c.competitors)
	return out
}

// Spawn allocates an isolated session per agent label (§4.5.2 "Spawning");
// commandFor builds the argv for a given agent label. If any spawn fails, the competition transitions to Failed and already
// spawned competitors are reaped.
func (c *Competition) Spawn(labels []string, commandFor func(label string) []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Spawning {
		return fmt.Errorf("competition %s: spawn called in state %s", c.id, c.state)
	}

	for _, label := range labels {
		sid, err := c.sessions.Spawn(session.SpawnSpec{
			AgentLabel: label,
			Command:    commandFor(label),
			Isolated:   true,
			BaseBranch: c.baseBranch,
		})
		if err != nil {
			c.failLocked(fmt.Errorf("spawn %s: %w", label, err))
			return err
		}
		info, err := c.sessions.Get(sid)
		if err != nil {
			c.failLocked(fmt.Errorf("get spawned session %s: %w", sid, err))
			return err
		}
		if err := c.sessions.Write(sid, []byte(c.prompt+"\n")); err != nil {
			c.logger.WithError(err).WithField("session_id", sid).Warn("failed to transmit prompt")
		}
		c.competitors = append(c.competitors, &Competitor{
			SessionID:    sid,
			AgentLabel:   label,
			AgentType:    label,
			Branch:       info.Branch,
			WorktreePath: info.WorkDir,
			SpawnedAt:    time.Now(),
		})
	}

	c.state = Running
	return nil
}

func (c *Competition) failLocked(err error) {
	c.logger.WithError(err).WithField("competition_id", c.id).Error("competition failed")
	for _, comp := range c.competitors {
		_ = c.sessions.Kill(comp.SessionID)
	}
	c.state = Failed
	// No competitor won, so every worktree is a loser's (§4.5.2 "Cleanup":
	// unconditional removal on transition to Failed).
	c.cleanupLocked(context.Background(), "")
}

// Tick polls competitor statuses (§4.5.2 "Running"). Call this from the
// same poll-driven loop that drives the session manager. Returns true once
// the competition has left Running.
func (c *Competition) Tick(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return true, nil
	}

	allComplete := true
	for _, comp := range c.competitors {
		if comp.completed {
			continue
		}
		info, err := c.sessions.Get(comp.SessionID)
		if err != nil {
			continue
		}
		if info.Status.Kind != session.StatusExited || info.Status.ExitCode != 0 {
			// Still running, or exited non-zero: neither counts as
			// "completed" (§4.5.2); a crashed competitor is simply
			// excluded once the deadline elapses.
			allComplete = false
			continue
		}

		if c.opts.RequireCommit {
			ahead, err := branchAheadOfMainline(ctx, c.pipeline.opts.RepoRoot, c.baseBranch, comp.Branch)
			if err != nil || !ahead {
				allComplete = false
				continue
			}
		}
		comp.completed = true
		comp.CompletedAt = time.Now()
	}

	if allComplete || time.Now().After(c.deadline) {
		c.state = Evaluating
		return true, nil
	}
	return false, nil
}

// Evaluate runs Stages 1-4 of the single-agent pipeline (without
// committing) for each completed competitor, records validation and diff
// stats, then applies the configured evaluator strategy (§4.5.2
// "Evaluating").
func (c *Competition) Evaluate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Evaluating {
		return fmt.Errorf("competition %s: evaluate called in state %s", c.id, c.state)
	}

	var passing []*Competitor
	for _, comp := range c.competitors {
		if !comp.completed {
			continue
		}
		cand := Candidate{SessionID: comp.SessionID, Branch: comp.Branch, WorktreePath: comp.WorktreePath}
		validation, gate, fatal := c.pipeline.Validate(ctx, cand)
		if fatal != nil {
			c.logger.WithError(fatal).WithField("session_id", comp.SessionID).Warn("competitor validation fatal")
			continue
		}
		if gate != nil {
			c.logger.WithField("session_id", comp.SessionID).WithField("reason", gate.Reason.String()).Info("competitor gated out of evaluation")
			continue
		}
		comp.Validation = validation

		stats, err := numstat(ctx, c.pipeline.opts.RepoRoot, c.baseBranch, comp.Branch)
		if err == nil {
			comp.DiffStats = &stats
		}
		diff, err := unifiedDiff(ctx, c.pipeline.opts.RepoRoot, c.baseBranch, comp.Branch)
		if err == nil {
			comp.Diff = diff
		}

		passing = append(passing, comp)
	}

	if len(passing) == 0 {
		c.state = Failed
		c.cleanupLocked(ctx, "")
		return fmt.Errorf("competition %s: no passing competitors", c.id)
	}

	var winner *Competitor
	var err error
	switch c.evaluator {
	case EvaluatorMetrics:
		winner, err = scoreMetrics(passing, c.deadlineDuration.Seconds())
		if winner != nil {
			c.ranking = rankingBySessionID(passing, winner)
		}
	case EvaluatorModel:
		var ranking []string
		winner, ranking, err = scoreModel(ctx, c.model, c.prompt, passing)
		c.ranking = ranking
	case EvaluatorHuman:
		c.ranking = sessionIDs(passing)
		c.state = Merging // human selection happens via SelectWinner, gating Merge itself
		return nil
	default:
		err = fmt.Errorf("unknown evaluator strategy %q", c.evaluator)
	}
	if err != nil {
		c.state = Failed
		c.cleanupLocked(ctx, "")
		return err
	}

	winner.IsWinner = true
	c.state = Merging
	return nil
}

// SelectWinner is called by the presentation layer for the human evaluator
// strategy (§4.5.2 "Human": "block on an external selection").
func (c *Competition) SelectWinner(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, comp := range c.competitors {
		if comp.SessionID == sessionID {
			comp.IsWinner = true
			c.winnerOnce.Do(func() { c.humanWinner <- sessionID })
			return nil
		}
	}
	return fmt.Errorf("competition %s: unknown competitor %q", c.id, sessionID)
}

// Ranking returns the evaluator's ranked session ids, winner first, once
// Evaluate has run.
func (c *Competition) Ranking() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ranking))
	copy(out, c.ranking)
	return out
}

// Merge runs Stages 2-5 on the winner's branch (§4.5.2 "Merging"). For the
// human strategy it first blocks on SelectWinner via ctx's deadline.
func (c *Competition) Merge(ctx context.Context) (*MergeResult, error) {
	c.mu.Lock()
	if c.state != Merging {
		c.mu.Unlock()
		return nil, fmt.Errorf("competition %s: merge called in state %s", c.id, c.state)
	}
	evaluator := c.evaluator
	ranking := append([]string(nil), c.ranking...)
	c.mu.Unlock()

	if evaluator == EvaluatorHuman {
		select {
		case sid := <-c.humanWinner:
			ranking = append([]string{sid}, removeFromRanking(ranking, sid)...)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var lastGate *MergeGate
	for _, sid := range ranking {
		comp := c.competitorBySession(sid)
		if comp == nil {
			continue
		}
		cand := Candidate{SessionID: comp.SessionID, Branch: comp.Branch, WorktreePath: comp.WorktreePath}
		result, err := c.pipeline.Merge(ctx, cand)
		if err == nil {
			c.mu.Lock()
			comp.IsWinner = true
			c.state = Completed
			c.mu.Unlock()
			c.cleanup(ctx, sid)
			return result, nil
		}
		if gate, ok := err.(*MergeGate); ok {
			lastGate = gate
			continue
		}
		c.mu.Lock()
		c.state = Failed
		c.cleanupLocked(ctx, "")
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.state = Failed
	c.cleanupLocked(ctx, "")
	c.mu.Unlock()
	if lastGate != nil {
		return nil, lastGate
	}
	return nil, fmt.Errorf("competition %s: no competitor mergeable", c.id)
}

// cleanup removes losing competitors' worktrees unconditionally once the
// competition reaches Completed or Failed (§4.5.2 "Cleanup"). Call with an
// empty winnerSessionID on a Failed transition, where nobody won and every
// competitor's worktree is a loser's.
func (c *Competition) cleanup(ctx context.Context, winnerSessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked(ctx, winnerSessionID)
}

// cleanupLocked is cleanup's body for callers that already hold c.mu.
func (c *Competition) cleanupLocked(ctx context.Context, winnerSessionID string) {
	for _, comp := range c.competitors {
		if comp.SessionID == winnerSessionID {
			continue
		}
		if c.worktrees != nil {
			_ = c.worktrees.Remove(ctx, comp.SessionID, true)
		}
	}
}

// Cancel delivers terminate to every running competitor (§4.5.2
// "Cancellation"). Cancelled preserves all worktrees for inspection.
func (c *Competition) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return
	}
	for _, comp := range c.competitors {
		_ = c.sessions.Kill(comp.SessionID)
	}
	c.state = Cancelled
}

func (c *Competition) competitorBySession(sid string) *Competitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, comp := range c.competitors {
		if comp.SessionID == sid {
			return comp
		}
	}
	return nil
}

func rankingBySessionID(passing []*Competitor, winner *Competitor) []string {
	out := []string{winner.SessionID}
	for _, comp := range passing {
		if comp != winner {
			out = append(out, comp.SessionID)
		}
	}
	return out
}

func sessionIDs(competitors []*Competitor) []string {
	out := make([]string, len(competitors))
	for i, c := range competitors {
		out[i] = c.SessionID
	}
	return out
}

func removeFromRanking(ranking []string, sid string) []string {
	out := make([]string, 0, len(ranking))
	for _, s := range ranking {
		if s != sid {
			out = append(out, s)
		}
	}
	return out
}
