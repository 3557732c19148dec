// Package analytics persists token lifecycle events and security events so
// that anomaly detection and monitoring rules have history to evaluate.
package analytics

import (
	"context"
	"time"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// ErrNotFound is returned when a requested record is not found in the store.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "analytics record not found")

// Retention windows applied by DeleteExpired. Token events are operational
// history; security events are kept longer for investigations.
const (
	TokenEventRetention    = 90 * 24 * time.Hour
	SecurityEventRetention = 180 * 24 * time.Hour
)

// Store persists token and security events.
//
// Error Contract:
// - Return ErrNotFound when the requested entity does not exist
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	RecordTokenEvent(ctx context.Context, event *models.TokenEvent) error

	// ListTokenEvents returns the user's most recent token events,
	// newest first, at most limit entries.
	ListTokenEvents(ctx context.Context, userID string, limit int) ([]*models.TokenEvent, error)

	// CountTokenEventsSince counts the user's token events of the given
	// type recorded at or after since. Used by threshold rules.
	CountTokenEventsSince(ctx context.Context, userID, eventType string, since time.Time) (int, error)

	RecordSecurityEvent(ctx context.Context, event *models.SecurityEvent) error

	// ListSecurityEventsBySession returns all security events recorded
	// against the session, oldest first.
	ListSecurityEventsBySession(ctx context.Context, sessionID string) ([]*models.SecurityEvent, error)

	// ListUnresolvedSecurityEvents returns the user's open security
	// events, oldest first.
	ListUnresolvedSecurityEvents(ctx context.Context, userID string) ([]*models.SecurityEvent, error)

	// ResolveSecurityEvent marks the event handled.
	ResolveSecurityEvent(ctx context.Context, id string, at time.Time) error

	// DeleteExpired removes token events older than TokenEventRetention
	// and security events older than SecurityEventRetention. Returns the
	// number of records removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
