package audit

import (
	"context"

	pkgerrors "passq/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "audit entry not found")
)

// Store persists committed ledger entries. The ledger serializes appends,
// so implementations never see concurrent writes for the same chain.
type Store interface {
	// Append persists a committed entry. Sequence numbers arrive in order
	// without gaps.
	Append(ctx context.Context, entry *Entry) error

	// Last returns the entry with the highest sequence, or ErrNotFound
	// when the ledger is empty.
	Last(ctx context.Context) (*Entry, error)

	// Range returns entries with from <= sequence <= to, ordered by
	// sequence ascending.
	Range(ctx context.Context, from, to uint64) ([]*Entry, error)

	// ListByUser returns the most recent entries for a user, newest first,
	// capped at limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Entry, error)
}
