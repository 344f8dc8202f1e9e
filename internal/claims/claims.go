// Package claims implements the advisory file-claim registry from §3: at
// most one active claim per path, idempotent release, backed by
// internal/store's file_claims table under a single transaction per
// mutation so a claim list is always a consistent snapshot.
package claims

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rembrandt-dev/rembrandt/internal/store"
)

// Claim is one advisory lock as observed by a caller: the path-keyed record
// plus an opaque correlation id for log correlation across acquire/release.
type Claim struct {
	Path       string
	SessionID  string
	AcquiredAt time.Time
	ClaimID    string
}

// Registry mediates advisory claims over worktree-relative paths. It does
// not itself enforce filesystem access; agents are expected to consult it
// before touching a path outside their own worktree (§3).
type Registry struct {
	store *store.Store
}

func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// ConflictError reports that path is already claimed by a different session.
type ConflictError struct {
	Path      string
	HolderID  string
	Requester string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("path %q already claimed by session %s (requested by %s)", e.Path, e.HolderID, e.Requester)
}

// Acquire claims path on behalf of sessionID. Re-acquiring a path the same
// session already holds is a no-op; acquiring a path held by a different
// session fails with *ConflictError.
func (r *Registry) Acquire(path, sessionID string) (Claim, error) {
	now := time.Now().UTC()
	claimID := uuid.NewString()

	if err := r.store.AcquireClaim(path, sessionID, now); err != nil {
		existing, lookupErr := r.holder(path)
		if lookupErr == nil && existing != "" && existing != sessionID {
			return Claim{}, &ConflictError{Path: path, HolderID: existing, Requester: sessionID}
		}
		return Claim{}, fmt.Errorf("acquire claim %q: %w", path, err)
	}

	return Claim{Path: path, SessionID: sessionID, AcquiredAt: now, ClaimID: claimID}, nil
}

func (r *Registry) holder(path string) (string, error) {
	all, err := r.store.ListClaims()
	if err != nil {
		return "", err
	}
	for _, c := range all {
		if c.Path == path {
			return c.SessionID, nil
		}
	}
	return "", nil
}

// Release drops the claim on path, if any. Idempotent (§3).
func (r *Registry) Release(path string) error {
	return r.store.ReleaseClaim(path)
}

// ReleaseAll drops every claim held by sessionID, used on merge completion
// or session kill so a terminated agent never leaves a dangling lock.
func (r *Registry) ReleaseAll(sessionID string) error {
	return r.store.ReleaseClaimsBySession(sessionID)
}

// List returns a consistent snapshot of every active claim, ordered by
// acquisition time.
func (r *Registry) List() ([]Claim, error) {
	rows, err := r.store.ListClaims()
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	out := make([]Claim, 0, len(rows))
	for _, row := range rows {
		out = append(out, Claim{Path: row.Path, SessionID: row.SessionID, AcquiredAt: row.AcquiredAt})
	}
	return out, nil
}
