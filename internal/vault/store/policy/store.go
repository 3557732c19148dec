// Package policy persists per-user session limits and trusted devices.
package policy

import (
	"context"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// ErrNotFound is returned when a requested record is not found in the store.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "policy record not found")

// Store persists session admission policy and device trust records.
//
// Error Contract:
// - Return ErrNotFound when the requested entity does not exist
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	// LimitsForUser returns the user's explicit session limits, or
	// ErrNotFound when none are configured. Callers fall back to
	// models.DefaultSessionLimits.
	LimitsForUser(ctx context.Context, userID string) (*models.SessionLimits, error)

	// SaveLimits inserts or replaces the user's session limits.
	SaveLimits(ctx context.Context, limits *models.SessionLimits) error

	// FindDevice returns the user's device record for the fingerprint.
	FindDevice(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error)

	// SaveDevice inserts or replaces a device record.
	SaveDevice(ctx context.Context, device *models.TrustedDevice) error

	// ListDevices returns all devices seen for the user.
	ListDevices(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
}
