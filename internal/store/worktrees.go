package store

import (
	"database/sql"
	"fmt"
	"time"
)

// WorktreeRow is the persisted projection of a worktree record (§6).
type WorktreeRow struct {
	ID        string
	Path      string
	Branch    string
	Base      string
	CreatedAt time.Time
}

func (s *Store) UpsertWorktree(r *WorktreeRow) error {
	_, err := s.db.Exec(`INSERT INTO worktrees (id, path, branch, base, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET path = excluded.path, branch = excluded.branch`,
		r.ID, r.Path, r.Branch, r.Base, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert worktree: %w", err)
	}
	return nil
}

func (s *Store) ListWorktrees() ([]*WorktreeRow, error) {
	rows, err := s.db.Query(`SELECT id, path, branch, base, created_at FROM worktrees ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	defer rows.Close()

	var out []*WorktreeRow
	for rows.Next() {
		r := &WorktreeRow{}
		if err := rows.Scan(&r.ID, &r.Path, &r.Branch, &r.Base, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan worktree: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteWorktree(id string) error {
	_, err := s.db.Exec("DELETE FROM worktrees WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete worktree: %w", err)
	}
	return nil
}

// FileClaim is one advisory lock record (§3).
type FileClaim struct {
	Path       string
	SessionID  string
	AcquiredAt time.Time
}

// AcquireClaim inserts a claim for path under a transaction, refusing if the
// path is already held by a different session (§3: "at most one active
// claim per path").
func (s *Store) AcquireClaim(path, sessionID string, acquiredAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow("SELECT session_id FROM file_claims WHERE path = ?", path).Scan(&existing)
	if err == nil && existing != sessionID {
		return fmt.Errorf("path %q already claimed by %s", path, existing)
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check claim: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO file_claims (path, session_id, acquired_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET session_id = excluded.session_id, acquired_at = excluded.acquired_at`,
		path, sessionID, acquiredAt.UTC()); err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}

	return tx.Commit()
}

// ReleaseClaim removes a claim. Idempotent: releasing an absent claim is not
// an error (§3).
func (s *Store) ReleaseClaim(path string) error {
	_, err := s.db.Exec("DELETE FROM file_claims WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// ReleaseClaimsBySession releases every claim held by sessionID (used on
// merge completion or kill).
func (s *Store) ReleaseClaimsBySession(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM file_claims WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("release claims for session: %w", err)
	}
	return nil
}

// ListClaims returns a consistent snapshot of every active claim.
func (s *Store) ListClaims() ([]*FileClaim, error) {
	rows, err := s.db.Query("SELECT path, session_id, acquired_at FROM file_claims ORDER BY acquired_at")
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*FileClaim
	for rows.Next() {
		c := &FileClaim{}
		if err := rows.Scan(&c.Path, &c.SessionID, &c.AcquiredAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
