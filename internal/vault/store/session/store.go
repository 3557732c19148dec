// Package session persists vault sessions and implements the single-use
// refresh rotation at the storage boundary, where it can be made atomic.
package session

import (
	"context"
	"time"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// ErrNotFound is returned when a requested record is not found in the store.
// Services should check for this error using errors.Is(err, session.ErrNotFound).
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "session not found")

// ErrRefreshReused is returned when a presented refresh jti does not match
// the session's current one. The token was already rotated away; whoever
// presents it now holds a stale or stolen token.
var ErrRefreshReused = dErrors.New(dErrors.CodeReuseDetected, "refresh token already used")

// ErrSessionRevoked is returned for operations on revoked sessions.
var ErrSessionRevoked = dErrors.New(dErrors.CodeTokenRevoked, "session has been revoked")

// ErrSessionExpired is returned for operations on expired sessions.
var ErrSessionExpired = dErrors.New(dErrors.CodeTokenExpired, "session expired")

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested entity does not exist
// - Return the sentinel errors above for lifecycle violations
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
	Update(ctx context.Context, session *models.Session) error

	// Rotate atomically consumes the presented refresh jti and installs the
	// new token pair. Exactly one concurrent caller presenting the same jti
	// succeeds; the rest receive ErrRefreshReused. A presented jti that is
	// not the session's current one also returns ErrRefreshReused.
	Rotate(ctx context.Context, sessionID, presentedJTI, newAccessJTI, newRefreshJTI string, now time.Time) (*models.Session, error)

	// RevokeIfActive revokes the session and returns its final state so the
	// caller can tombstone the outstanding token pair. Idempotent callers
	// should treat ErrSessionRevoked as success.
	RevokeIfActive(ctx context.Context, sessionID string, now time.Time) (*models.Session, error)

	// RevokeAllForUser revokes every active session for the user and
	// returns the sessions that were revoked by this call.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error)

	// TouchActivity updates the session's last activity time.
	TouchActivity(ctx context.Context, sessionID string, at time.Time) error

	// DeleteExpired removes sessions that expired before now or have been
	// idle since before idleCutoff. Returns the number removed.
	DeleteExpired(ctx context.Context, now time.Time, idleCutoff time.Time) (int, error)
}
