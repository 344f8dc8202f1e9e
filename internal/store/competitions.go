package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CompetitionRow is the persisted projection of a competition (§3, §6).
type CompetitionRow struct {
	ID            string
	Prompt        string
	Status        string
	Evaluator     string
	CreatedAt     time.Time
	WinnerSession *string
}

// CompetitorRow is the persisted projection of one competitor within a
// competition (§3, §6).
type CompetitorRow struct {
	CompetitionID  string
	SessionID      string
	AgentType      string
	Branch         string
	WorktreePath   string
	ValidationJSON *string
	DiffStatsJSON  *string
}

func (s *Store) UpsertCompetition(r *CompetitionRow) error {
	_, err := s.db.Exec(`INSERT INTO competitions (id, prompt, status, evaluator, created_at, winner_session)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, winner_session = excluded.winner_session`,
		r.ID, r.Prompt, r.Status, r.Evaluator, r.CreatedAt.UTC(), r.WinnerSession)
	if err != nil {
		return fmt.Errorf("upsert competition: %w", err)
	}
	return nil
}

func (s *Store) GetCompetition(id string) (*CompetitionRow, error) {
	r := &CompetitionRow{}
	err := s.db.QueryRow(`SELECT id, prompt, status, evaluator, created_at, winner_session
		FROM competitions WHERE id = ?`, id).Scan(
		&r.ID, &r.Prompt, &r.Status, &r.Evaluator, &r.CreatedAt, &r.WinnerSession)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get competition: %w", err)
	}
	return r, nil
}

func (s *Store) UpsertCompetitor(r *CompetitorRow) error {
	_, err := s.db.Exec(`INSERT INTO competitors (competition_id, session_id, agent_type, branch, worktree_path, validation_json, diff_stats_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(competition_id, session_id) DO UPDATE SET
			validation_json = excluded.validation_json,
			diff_stats_json = excluded.diff_stats_json`,
		r.CompetitionID, r.SessionID, r.AgentType, r.Branch, r.WorktreePath, r.ValidationJSON, r.DiffStatsJSON)
	if err != nil {
		return fmt.Errorf("upsert competitor: %w", err)
	}
	return nil
}

func (s *Store) ListCompetitors(competitionID string) ([]*CompetitorRow, error) {
	rows, err := s.db.Query(`SELECT competition_id, session_id, agent_type, branch, worktree_path, validation_json, diff_stats_json
		FROM competitors WHERE competition_id = ?`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list competitors: %w", err)
	}
	defer rows.Close()

	var out []*CompetitorRow
	for rows.Next() {
		r := &CompetitorRow{}
		if err := rows.Scan(&r.CompetitionID, &r.SessionID, &r.AgentType, &r.Branch, &r.WorktreePath, &r.ValidationJSON, &r.DiffStatsJSON); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
