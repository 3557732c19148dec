package revocation

import (
	"context"
	"sync"
	"time"

	"passq/internal/vault/models"
)

// InMemoryStore is an in-memory revocation list for tests and single-node
// deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.RevokedToken
}

// NewInMemory creates an empty in-memory revocation list.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.RevokedToken)}
}

func (s *InMemoryStore) Revoke(_ context.Context, token *models.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *token
	s.tokens[token.JTI] = &copied
	return nil
}

func (s *InMemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.tokens[jti]
	return exists, nil
}

func (s *InMemoryStore) Find(_ context.Context, jti string) (*models.RevokedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token, ok := s.tokens[jti]; ok {
		copied := *token
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for jti, token := range s.tokens {
		if now.After(token.ExpiresAt.Add(retention)) {
			delete(s.tokens, jti)
			deleted++
		}
	}
	return deleted, nil
}

var _ Store = (*InMemoryStore)(nil)
