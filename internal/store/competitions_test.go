package store

import (
	"testing"
	"time"
)

func TestUpsertAndGetCompetition(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	row := &CompetitionRow{
		ID:        "comp-1",
		Prompt:    "implement the rate limiter",
		Status:    "running",
		Evaluator: "metrics",
		CreatedAt: now,
	}
	if err := s.UpsertCompetition(row); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetCompetition("comp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected competition, got nil")
	}
	if got.Prompt != row.Prompt || got.Evaluator != row.Evaluator {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.WinnerSession != nil {
		t.Fatalf("expected no winner yet, got %v", *got.WinnerSession)
	}
}

func TestUpsertCompetition_RecordsWinnerOnConflict(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	row := &CompetitionRow{ID: "comp-2", Prompt: "p", Status: "running", Evaluator: "model", CreatedAt: now}
	if err := s.UpsertCompetition(row); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}

	winner := "agent-a1b2"
	row.Status = "completed"
	row.WinnerSession = &winner
	if err := s.UpsertCompetition(row); err != nil {
		t.Fatalf("conflicting upsert: %v", err)
	}

	got, err := s.GetCompetition("comp-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("expected status completed, got %q", got.Status)
	}
	if got.WinnerSession == nil || *got.WinnerSession != winner {
		t.Fatalf("expected winner %q, got %v", winner, got.WinnerSession)
	}
	if got.Prompt != "p" {
		t.Fatalf("prompt should be unchanged, got %q", got.Prompt)
	}
}

func TestGetCompetition_UnknownReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetCompetition("does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestUpsertAndListCompetitors(t *testing.T) {
	s := openTestStore(t)
	comp := &CompetitionRow{ID: "comp-3", Prompt: "p", Status: "running", Evaluator: "metrics", CreatedAt: time.Now().UTC()}
	if err := s.UpsertCompetition(comp); err != nil {
		t.Fatalf("upsert competition: %v", err)
	}

	validation := `{"tests_passed":12,"tests_total":12}`
	competitor := &CompetitorRow{
		CompetitionID:  "comp-3",
		SessionID:      "agent-a1b2",
		AgentType:      "claude",
		Branch:         "rembrandt/agent-a1b2",
		WorktreePath:   "/workspace/.rembrandt/agents/agent-a1b2",
		ValidationJSON: &validation,
	}
	if err := s.UpsertCompetitor(competitor); err != nil {
		t.Fatalf("upsert competitor: %v", err)
	}

	competitors, err := s.ListCompetitors("comp-3")
	if err != nil {
		t.Fatalf("list competitors: %v", err)
	}
	if len(competitors) != 1 {
		t.Fatalf("expected 1 competitor, got %d", len(competitors))
	}
	if competitors[0].ValidationJSON == nil || *competitors[0].ValidationJSON != validation {
		t.Fatalf("unexpected validation json: %+v", competitors[0])
	}
}

func TestUpsertCompetitor_UpdatesDiffStatsOnConflict(t *testing.T) {
	s := openTestStore(t)
	comp := &CompetitionRow{ID: "comp-4", Prompt: "p", Status: "running", Evaluator: "metrics", CreatedAt: time.Now().UTC()}
	if err := s.UpsertCompetition(comp); err != nil {
		t.Fatalf("upsert competition: %v", err)
	}

	competitor := &CompetitorRow{CompetitionID: "comp-4", SessionID: "agent-c3d4", AgentType: "codex", Branch: "rembrandt/agent-c3d4", WorktreePath: "/workspace/x"}
	if err := s.UpsertCompetitor(competitor); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}

	diffStats := `{"files_changed":3,"insertions":40,"deletions":5}`
	competitor.DiffStatsJSON = &diffStats
	if err := s.UpsertCompetitor(competitor); err != nil {
		t.Fatalf("conflicting upsert: %v", err)
	}

	competitors, err := s.ListCompetitors("comp-4")
	if err != nil {
		t.Fatalf("list competitors: %v", err)
	}
	if len(competitors) != 1 {
		t.Fatalf("expected 1 competitor, got %d", len(competitors))
	}
	if competitors[0].DiffStatsJSON == nil || *competitors[0].DiffStatsJSON != diffStats {
		t.Fatalf("expected updated diff stats, got %+v", competitors[0])
	}
	if competitors[0].AgentType != "codex" {
		t.Fatalf("agent_type should be unchanged, got %q", competitors[0].AgentType)
	}
}

func TestListCompetitors_EmptyForUnknownCompetition(t *testing.T) {
	s := openTestStore(t)
	competitors, err := s.ListCompetitors("no-such-competition")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(competitors) != 0 {
		t.Fatalf("expected 0 competitors, got %d", len(competitors))
	}
}
