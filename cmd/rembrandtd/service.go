package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rembrandt-dev/rembrandt/internal/claims"
	"github.com/rembrandt-dev/rembrandt/internal/external"
	"github.com/rembrandt-dev/rembrandt/internal/pipeline"
	"github.com/rembrandt-dev/rembrandt/internal/session"
	"github.com/rembrandt-dev/rembrandt/internal/store"
	"github.com/rembrandt-dev/rembrandt/internal/worktree"
	"github.com/rembrandt-dev/rembrandt/pkg/config"
)

// Service is the daemon's RPC receiver (net/rpc requires exported methods of
// the form func(Args, *Reply) error). It owns every live collaborator; the
// CLI commands other than `init` and `serve` are thin clients dialing its
// socket.
type Service struct {
	ws  *workspace
	cfg *config.Config
	log *logrus.Logger

	store     *store.Store
	worktrees *worktree.Manager
	claims    *claims.Registry
	sessions  *session.Manager
	pipeline  *pipeline.Pipeline
	orphans   *worktree.OrphanWatcher

	mu           sync.Mutex
	competitions map[string]*pipeline.Competition
}

func newService(ws *workspace, cfg *config.Config, log *logrus.Logger) (*Service, error) {
	st, err := store.Open(ws.statePath())
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	wt := worktree.New(ws.repoRoot, ws.root)
	cl := claims.New(st)

	sm := session.New(session.Options{
		PollInterval:       cfg.PollInterval,
		ReapGrace:          cfg.ReapGrace,
		KillGrace:          cfg.KillGrace,
		ScrollbackCapacity: cfg.ScrollbackBytes,
		LogDir:             ws.logsDir(),
		Worktrees:          worktree.Provisioner{M: wt},
		Logger:             log,
	})

	pl := pipeline.New(pipeline.Options{
		RepoRoot:    ws.repoRoot,
		BaseBranch:  "main",
		TaskTracker: external.NoopTaskTracker{},
		Constraint:  external.ConstraintCheck{Command: cfg.ConstraintCommand},
		TypeChecker: external.TypeChecker{Command: cfg.TypeCheckCommand},
		TestRunner:  external.TestRunner{Command: cfg.TestCommand},
		Worktrees:   wt,
		Claims:      cl,
		Logger:      log,
	})

	svc := &Service{
		ws:           ws,
		cfg:          cfg,
		log:          log,
		store:        st,
		worktrees:    wt,
		claims:       cl,
		sessions:     sm,
		pipeline:     pl,
		competitions: make(map[string]*pipeline.Competition),
	}

	if ow, err := worktree.WatchForOrphans(wt, log); err != nil {
		log.WithError(err).Warn("orphan watcher unavailable, falling back to scan-only gc")
	} else {
		svc.orphans = ow
	}

	go svc.persistLifecycleEvents()
	return svc, nil
}

func (svc *Service) Close() {
	svc.orphans.Close()
	svc.sessions.Close()
	_ = svc.store.Close()
}

// persistLifecycleEvents mirrors session status transitions into state.db
// (§6's "Persisted state"). The daemon only writes these rows: `list` and
// `status` answer from the live session manager.
func (svc *Service) persistLifecycleEvents() {
	events := svc.sessions.Events().C()
	for ev := range events {
		info, err := svc.sessions.Get(ev.SessionID)
		if err != nil {
			continue
		}
		statusJSON, _ := json.Marshal(info.Status)
		var branch *string
		if info.Branch != "" {
			b := info.Branch
			branch = &b
		}
		row := &store.SessionRow{
			ID:         info.ID,
			AgentID:    info.AgentID,
			Command:    fmt.Sprint(info.Command),
			WorkDir:    info.WorkDir,
			Branch:     branch,
			Isolated:   info.Isolated,
			CreatedAt:  info.CreatedAt,
			StatusJSON: string(statusJSON),
		}
		if err := svc.store.UpsertSession(row); err != nil {
			svc.log.WithError(err).WithField("session_id", info.ID).Warn("persist session failed")
		}
	}
}

func (svc *Service) Spawn(args SpawnArgs, reply *SpawnReply) error {
	spec := session.SpawnSpec{
		AgentLabel: args.AgentLabel,
		Command:    args.Command,
		Cols:       args.Cols,
		Rows:       args.Rows,
		Env:        args.Env,
		Isolated:   args.Isolated,
		BaseBranch: args.BaseBranch,
	}
	id, err := svc.sessions.Spawn(spec)
	if err != nil {
		return err
	}

	info, err := svc.sessions.Get(id)
	if err == nil && info.Isolated {
		row := &store.WorktreeRow{ID: id, Path: info.WorkDir, Branch: info.Branch, Base: args.BaseBranch, CreatedAt: info.CreatedAt}
		if err := svc.store.UpsertWorktree(row); err != nil {
			svc.log.WithError(err).Warn("persist worktree failed")
		}
	}

	reply.SessionID = id
	return nil
}

func (svc *Service) List(_ struct{}, reply *ListReply) error {
	reply.Sessions = svc.sessions.List()
	return nil
}

func (svc *Service) GetHistory(args GetHistoryArgs, reply *GetHistoryReply) error {
	data, offset, err := svc.sessions.Snapshot(args.SessionID, args.Offset)
	if err != nil {
		return err
	}
	info, err := svc.sessions.Get(args.SessionID)
	if err != nil {
		return err
	}
	reply.Data = data
	reply.Offset = offset
	reply.Status = info.Status
	reply.AgentID = info.AgentID
	reply.Branch = info.Branch
	reply.WorkDir = info.WorkDir
	reply.CreatedAt = info.CreatedAt
	return nil
}

func (svc *Service) Write(args WriteArgs, _ *struct{}) error {
	return svc.sessions.Write(args.SessionID, args.Data)
}

func (svc *Service) Resize(args ResizeArgs, _ *struct{}) error {
	return svc.sessions.Resize(args.SessionID, args.Cols, args.Rows)
}

func (svc *Service) Nudge(args SessionIDArgs, _ *struct{}) error {
	return svc.sessions.Nudge(args.SessionID)
}

func (svc *Service) Kill(args SessionIDArgs, _ *struct{}) error {
	return svc.sessions.Kill(args.SessionID)
}

func (svc *Service) Broadcast(args BroadcastArgs, reply *BroadcastReply) error {
	filter := session.FilterAll()
	if args.LabelPrefix != "" {
		filter = session.FilterLabelPrefix(args.LabelPrefix)
	}
	if args.StatusFilter != "" {
		var kind session.StatusKind
		switch args.StatusFilter {
		case "running":
			kind = session.StatusRunning
		case "exited":
			kind = session.StatusExited
		case "failed":
			kind = session.StatusFailed
		default:
			return fmt.Errorf("unknown status filter %q", args.StatusFilter)
		}
		prev := filter
		filter = func(i session.Info) bool { return prev(i) && session.FilterStatus(kind)(i) }
	}
	reply.Delivered = svc.sessions.Broadcast(args.Data, filter)
	return nil
}

func (svc *Service) Merge(args MergeArgs, reply *MergeReply) error {
	info, err := svc.sessions.Get(args.SessionID)
	if err != nil {
		return err
	}
	if info.Branch == "" {
		return fmt.Errorf("session %s has no isolated branch to merge", args.SessionID)
	}

	result, err := svc.pipeline.Merge(context.Background(), pipeline.Candidate{
		SessionID:    args.SessionID,
		TaskID:       args.TaskID,
		Branch:       info.Branch,
		WorktreePath: info.WorkDir,
		CreatedAt:    info.CreatedAt,
	})
	if err != nil {
		return err
	}
	if err := svc.store.DeleteWorktree(args.SessionID); err != nil {
		svc.log.WithError(err).Warn("delete merged worktree row failed")
	}
	reply.CommitSHA = result.CommitSHA
	reply.FilesChanged = result.Stats.FilesChanged
	reply.Insertions = result.Stats.Insertions
	reply.Deletions = result.Stats.Deletions
	return nil
}

// Cleanup removes the worktree/branch for every terminal, non-running
// session (§4.4's reconciliation use: "stop holding a checkout open for a
// dead agent").
func (svc *Service) Cleanup(_ struct{}, reply *CleanupReply) error {
	for _, info := range svc.sessions.List() {
		if !info.Isolated || !info.Status.Terminal() {
			continue
		}
		if err := svc.worktrees.Remove(context.Background(), info.ID, false); err != nil {
			svc.log.WithError(err).WithField("session_id", info.ID).Warn("cleanup remove failed")
			continue
		}
		_ = svc.store.DeleteWorktree(info.ID)
		reply.Removed = append(reply.Removed, info.ID)
	}
	return nil
}

// Gc reconciles the worktree registry against the filesystem (§4.4). The
// scan is authoritative; svc.orphans only narrows detection latency between
// sweeps and is cleared once this sweep has accounted for everything it saw.
func (svc *Service) Gc(_ struct{}, reply *GcReply) error {
	report, err := svc.worktrees.Gc(context.Background())
	if err != nil {
		return err
	}
	reply.Pruned = report.Pruned
	reply.Orphans = report.Orphans
	svc.orphans.Clear()
	return nil
}

// Compete starts a new competition (§4.5.2): spawns one isolated session per
// agent label and registers it with the background competition runner.
func (svc *Service) Compete(args CompeteArgs, reply *CompeteReply) error {
	if len(args.Agents) == 0 {
		return errors.New("compete requires at least one agent")
	}
	baseBranch := args.BaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}
	deadline := args.Timeout
	if deadline <= 0 {
		deadline = svc.cfg.CompetitionDeadline
	}

	comp := pipeline.NewCompetition(
		args.CompetitionID, args.Prompt, args.Evaluator, deadline, baseBranch,
		svc.sessions, svc.worktrees, svc.pipeline, external.ModelEvaluator{},
		pipeline.CompetitionOptions{RequireCommit: svc.cfg.RequireCommit}, svc.log,
	)
	if err := comp.Spawn(args.Agents, func(label string) []string { return args.Command }); err != nil {
		return err
	}

	svc.mu.Lock()
	svc.competitions[args.CompetitionID] = comp
	svc.mu.Unlock()

	go svc.driveCompetition(comp)

	reply.CompetitionID = args.CompetitionID
	return nil
}

// driveCompetition polls a competition to completion the way the session
// manager polls child processes (§9's poll-driven design philosophy) rather
// than running the state machine on its own goroutine per stage.
func (svc *Service) driveCompetition(comp *pipeline.Competition) {
	ctx := context.Background()
	ticker := time.NewTicker(svc.cfg.PollInterval)
	defer ticker.Stop()

	for range ticker.C {
		state := comp.State()
		if state.Terminal() {
			return
		}
		switch state {
		case pipeline.Running:
			done, err := comp.Tick(ctx)
			if err != nil {
				svc.log.WithError(err).WithField("competition_id", comp.ID()).Warn("competition tick failed")
				return
			}
			if !done {
				continue
			}
		case pipeline.Evaluating:
			if err := comp.Evaluate(ctx); err != nil {
				svc.log.WithError(err).WithField("competition_id", comp.ID()).Warn("competition evaluate failed")
				return
			}
		case pipeline.Merging:
			if _, err := comp.Merge(ctx); err != nil {
				svc.log.WithError(err).WithField("competition_id", comp.ID()).Warn("competition merge failed")
			}
			return
		}
	}
}

func (svc *Service) CompeteStatus(args CompeteStatusArgs, reply *CompeteStatusReply) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	for id, comp := range svc.competitions {
		if args.CompetitionID != "" && id != args.CompetitionID {
			continue
		}
		view := CompetitionView{ID: comp.ID(), State: comp.State().String(), Ranking: comp.Ranking()}
		for _, c := range comp.Competitors() {
			view.Competitors = append(view.Competitors, CompetitorView{
				SessionID: c.SessionID, AgentLabel: c.AgentLabel, WorktreePath: c.WorktreePath,
				IsWinner: c.IsWinner, Completed: !c.CompletedAt.IsZero(),
			})
		}
		reply.Competitions = append(reply.Competitions, view)
	}
	return nil
}

func (svc *Service) CompeteCancel(args CompetitionIDArgs, _ *struct{}) error {
	svc.mu.Lock()
	comp, ok := svc.competitions[args.CompetitionID]
	svc.mu.Unlock()
	if !ok {
		return fmt.Errorf("competition %q not found", args.CompetitionID)
	}
	comp.Cancel()
	return nil
}

func (svc *Service) CompeteSelect(args CompeteSelectArgs, _ *struct{}) error {
	svc.mu.Lock()
	comp, ok := svc.competitions[args.CompetitionID]
	svc.mu.Unlock()
	if !ok {
		return fmt.Errorf("competition %q not found", args.CompetitionID)
	}
	return comp.SelectWinner(args.SessionID)
}
