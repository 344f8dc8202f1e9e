package main

import (
	"time"

	"github.com/rembrandt-dev/rembrandt/internal/pipeline"
	"github.com/rembrandt-dev/rembrandt/internal/session"
)

// The RPC surface below mirrors §6's "Renderer <-> core" function list
// verbatim: list_agents, get_history, write_to_agent, resize_agent,
// nudge_agent, kill_agent, spawn_agent, plus the merge/competition
// operations the command surface needs. It is served over
// net/rpc on a unix socket rooted in the workspace (serve.go), so every
// CLI invocation after `rembrandtd serve` is a thin client of one
// long-lived process that actually owns the ptys and worktrees.

type SpawnArgs struct {
	AgentLabel string
	Command    []string
	Cols, Rows uint16
	Env        []string
	Isolated   bool
	BaseBranch string
	TaskID     string
}

type SpawnReply struct {
	SessionID string
}

type SessionIDArgs struct {
	SessionID string
}

type ListReply struct {
	Sessions []session.Info
}

type GetHistoryArgs struct {
	SessionID string
	Offset    int64
}

type GetHistoryReply struct {
	Data      []byte
	Offset    int64
	Status    session.Status
	AgentID   string
	Branch    string
	WorkDir   string
	CreatedAt time.Time
}

type WriteArgs struct {
	SessionID string
	Data      []byte
}

type ResizeArgs struct {
	SessionID  string
	Cols, Rows uint16
}

type BroadcastArgs struct {
	Data         []byte
	LabelPrefix  string // empty means no prefix filter
	StatusFilter string // "", "running", "exited", "failed"
}

type BroadcastReply struct {
	Delivered int
}

type MergeArgs struct {
	SessionID string
	TaskID    string
}

type MergeReply struct {
	CommitSHA    string
	FilesChanged int
	Insertions   int
	Deletions    int
}

type CleanupReply struct {
	Removed []string
}

type GcReply struct {
	Pruned  []string
	Orphans []string
}

type CompeteArgs struct {
	CompetitionID string
	Prompt        string
	Agents        []string
	Command       []string
	Evaluator     pipeline.EvaluatorStrategy
	Timeout       time.Duration
	BaseBranch    string
}

type CompeteReply struct {
	CompetitionID string
}

type CompeteStatusArgs struct {
	CompetitionID string // empty lists every known competition
}

type CompetitorView struct {
	SessionID    string
	AgentLabel   string
	WorktreePath string
	IsWinner     bool
	Completed    bool
}

type CompetitionView struct {
	ID          string
	Prompt      string
	State       string
	Competitors []CompetitorView
	Ranking     []string
}

type CompeteStatusReply struct {
	Competitions []CompetitionView
}

type CompetitionIDArgs struct {
	CompetitionID string
}

type CompeteSelectArgs struct {
	CompetitionID string
	SessionID     string
}
