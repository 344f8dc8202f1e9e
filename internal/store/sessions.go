package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRow is the persisted projection of a session (§6).
type SessionRow struct {
	ID         string
	AgentID    string
	Command    string
	WorkDir    string
	Branch     *string
	Isolated   bool
	CreatedAt  time.Time
	StatusJSON string
}

func (s *Store) UpsertSession(r *SessionRow) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, agent_id, command, workdir, branch, isolated, created_at, status_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			branch = excluded.branch,
			isolated = excluded.isolated,
			status_json = excluded.status_json`,
		r.ID, r.AgentID, r.Command, r.WorkDir, r.Branch, r.Isolated, r.CreatedAt.UTC(), r.StatusJSON)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(id string) (*SessionRow, error) {
	r := &SessionRow{}
	err := s.db.QueryRow(`SELECT id, agent_id, command, workdir, branch, isolated, created_at, status_json
		FROM sessions WHERE id = ?`, id).Scan(
		&r.ID, &r.AgentID, &r.Command, &r.WorkDir, &r.Branch, &r.Isolated, &r.CreatedAt, &r.StatusJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return r, nil
}

func (s *Store) ListSessions() ([]*SessionRow, error) {
	rows, err := s.db.Query(`SELECT id, agent_id, command, workdir, branch, isolated, created_at, status_json
		FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		r := &SessionRow{}
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Command, &r.WorkDir, &r.Branch, &r.Isolated, &r.CreatedAt, &r.StatusJSON); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
