package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"passq/internal/vault/models"
)

// InMemoryStore is a Store backed by in-process maps.
// Suitable for development and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
	codes   map[string][]*models.BackupCode
}

// NewInMemory creates an empty in-memory user store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
		codes:   make(map[string][]*models.BackupCode),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *InMemoryStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(user.Email)
	if _, taken := s.byEmail[email]; taken {
		return ErrEmailTaken
	}
	stored := *user
	s.byID[user.ID] = &stored
	s.byEmail[email] = user.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.byID[id]
	return &copied, nil
}

func (s *InMemoryStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[user.ID]
	if !ok {
		return ErrNotFound
	}
	if normalizeEmail(existing.Email) != normalizeEmail(user.Email) {
		email := normalizeEmail(user.Email)
		if owner, taken := s.byEmail[email]; taken && owner != user.ID {
			return ErrEmailTaken
		}
		delete(s.byEmail, normalizeEmail(existing.Email))
		s.byEmail[email] = user.ID
	}
	stored := *user
	s.byID[user.ID] = &stored
	return nil
}

func (s *InMemoryStore) ReplaceBackupCodes(_ context.Context, userID string, codes []*models.BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]*models.BackupCode, 0, len(codes))
	for _, code := range codes {
		copied := *code
		stored = append(stored, &copied)
	}
	s.codes[userID] = stored
	return nil
}

func (s *InMemoryStore) ListUnusedBackupCodes(_ context.Context, userID string) ([]*models.BackupCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.BackupCode, 0)
	for _, code := range s.codes[userID] {
		if code.Used {
			continue
		}
		copied := *code
		result = append(result, &copied)
	}
	return result, nil
}

func (s *InMemoryStore) MarkBackupCodeUsed(_ context.Context, codeID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, codes := range s.codes {
		for _, code := range codes {
			if code.ID != codeID {
				continue
			}
			if code.Used {
				return ErrCodeUsed
			}
			code.Used = true
			code.UsedAt = &at
			return nil
		}
	}
	return ErrNotFound
}
