// Package secret persists encrypted vault records. The store only ever sees
// ciphertext; encryption happens in the service layer before records arrive.
package secret

import (
	"context"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// ErrNotFound is returned when a requested secret is not found in the store.
// Lookups are scoped by owner, so a secret belonging to another user is
// indistinguishable from one that does not exist.
var ErrNotFound = dErrors.New(dErrors.CodeSecretNotFound, "secret not found")

// Store persists encrypted secrets.
type Store interface {
	Create(ctx context.Context, secret *models.Secret) error
	Find(ctx context.Context, userID, secretID string) (*models.Secret, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Secret, error)
	Update(ctx context.Context, secret *models.Secret) error
	Delete(ctx context.Context, userID, secretID string) error
}
