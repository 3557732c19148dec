// Package revocation maintains the token revocation list: tombstones for
// individually revoked jtis, kept past the token's natural expiry so
// replayed tokens stay dead.
package revocation

import (
	"context"
	"time"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// ErrNotFound is returned when a requested tombstone does not exist.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "revoked token not found")

// DefaultRetention is how long tombstones are kept beyond the token's
// original expiry before the cleanup worker removes them.
const DefaultRetention = 30 * 24 * time.Hour

// Store is the token revocation list.
// Production deployments should use the Redis implementation so revocation
// is visible across instances.
type Store interface {
	// Revoke records a tombstone for the token's jti.
	Revoke(ctx context.Context, token *models.RevokedToken) error

	// IsRevoked reports whether the jti has an active tombstone.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Find returns the tombstone for a jti, or ErrNotFound.
	Find(ctx context.Context, jti string) (*models.RevokedToken, error)

	// DeleteExpired removes tombstones whose retention window has passed.
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}
