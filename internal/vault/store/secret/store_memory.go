package secret

import (
	"context"
	"sort"
	"sync"

	"passq/internal/vault/models"
)

// InMemoryStore is a Store backed by an in-process map.
// Suitable for development and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]*models.Secret
}

// NewInMemory creates an empty in-memory secret store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{secrets: make(map[string]*models.Secret)}
}

func copySecret(s *models.Secret) *models.Secret {
	copied := *s
	copied.EncryptedData = append([]byte(nil), s.EncryptedData...)
	return &copied
}

func (s *InMemoryStore) Create(_ context.Context, secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets[secret.ID] = copySecret(secret)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, userID, secretID string) (*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[secretID]
	if !ok || secret.UserID != userID {
		return nil, ErrNotFound
	}
	return copySecret(secret), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*models.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Secret, 0)
	for _, secret := range s.secrets {
		if secret.UserID != userID {
			continue
		}
		result = append(result, copySecret(secret))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *InMemoryStore) Update(_ context.Context, secret *models.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.secrets[secret.ID]
	if !ok || existing.UserID != secret.UserID {
		return ErrNotFound
	}
	s.secrets[secret.ID] = copySecret(secret)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, secretID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.secrets[secretID]
	if !ok || existing.UserID != userID {
		return ErrNotFound
	}
	delete(s.secrets, secretID)
	return nil
}
