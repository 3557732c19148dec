// Package user persists vault accounts and their MFA backup codes.
package user

import (
	"context"
	"time"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// ErrNotFound is returned when a requested record is not found in the store.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "user not found")

// ErrEmailTaken is returned when creating a user with an email that is
// already registered.
var ErrEmailTaken = dErrors.New(dErrors.CodeConflict, "email already registered")

// ErrCodeUsed is returned when marking a backup code that was already
// consumed. Exactly one concurrent consumer of a code succeeds.
var ErrCodeUsed = dErrors.New(dErrors.CodeInvalidCode, "backup code already used")

// Store persists users and backup codes.
//
// Error Contract:
// - Return ErrNotFound when the requested entity does not exist
// - Return the sentinel errors above for uniqueness and single-use violations
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error

	// ReplaceBackupCodes deletes the user's existing backup codes and
	// installs the new set. Re-enrollment invalidates old codes.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []*models.BackupCode) error

	// ListUnusedBackupCodes returns the user's unconsumed codes.
	ListUnusedBackupCodes(ctx context.Context, userID string) ([]*models.BackupCode, error)

	// MarkBackupCodeUsed atomically consumes the code. Returns ErrCodeUsed
	// if another caller consumed it first.
	MarkBackupCodeUsed(ctx context.Context, codeID string, at time.Time) error
}
