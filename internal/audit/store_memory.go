package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps ledger entries in a slice ordered by sequence.
// Suitable for single-node deployments and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	s.entries = append(s.entries, &e)
	return nil
}

func (s *InMemoryStore) Last(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, ErrNotFound
	}
	e := *s.entries[len(s.entries)-1]
	return &e, nil
}

func (s *InMemoryStore) Range(_ context.Context, from, to uint64) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, entry := range s.entries {
		if entry.Sequence >= from && entry.Sequence <= to {
			e := *entry
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			e := *s.entries[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

// Tamper overwrites a stored entry in place. Only used by integrity tests
// to simulate out-of-band modification of the backing store.
func (s *InMemoryStore) Tamper(sequence uint64, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.Sequence == sequence {
			mutate(entry)
			return true
		}
	}
	return false
}
