package analytics

import (
	"context"
	"sync"
	"time"

	"passq/internal/vault/models"
)

// InMemoryStore is a Store backed by in-process slices.
// Suitable for development and tests.
type InMemoryStore struct {
	mu             sync.RWMutex
	tokenEvents    []*models.TokenEvent
	securityEvents []*models.SecurityEvent
}

// NewInMemory creates an empty in-memory analytics store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		tokenEvents:    make([]*models.TokenEvent, 0),
		securityEvents: make([]*models.SecurityEvent, 0),
	}
}

func (s *InMemoryStore) RecordTokenEvent(_ context.Context, event *models.TokenEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *event
	s.tokenEvents = append(s.tokenEvents, &stored)
	return nil
}

func (s *InMemoryStore) ListTokenEvents(_ context.Context, userID string, limit int) ([]*models.TokenEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.TokenEvent, 0)
	for i := len(s.tokenEvents) - 1; i >= 0 && len(result) < limit; i-- {
		if s.tokenEvents[i].UserID != userID {
			continue
		}
		event := *s.tokenEvents[i]
		result = append(result, &event)
	}
	return result, nil
}

func (s *InMemoryStore) CountTokenEventsSince(_ context.Context, userID, eventType string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, event := range s.tokenEvents {
		if event.UserID == userID && event.EventType == eventType && !event.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) RecordSecurityEvent(_ context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *event
	s.securityEvents = append(s.securityEvents, &stored)
	return nil
}

func (s *InMemoryStore) ListSecurityEventsBySession(_ context.Context, sessionID string) ([]*models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.SecurityEvent, 0)
	for _, event := range s.securityEvents {
		if event.SessionID != sessionID {
			continue
		}
		copied := *event
		result = append(result, &copied)
	}
	return result, nil
}

func (s *InMemoryStore) ListUnresolvedSecurityEvents(_ context.Context, userID string) ([]*models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.SecurityEvent, 0)
	for _, event := range s.securityEvents {
		if event.UserID != userID || event.Resolved {
			continue
		}
		copied := *event
		result = append(result, &copied)
	}
	return result, nil
}

func (s *InMemoryStore) ResolveSecurityEvent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range s.securityEvents {
		if event.ID == id {
			event.Resolve(at)
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0

	keptTokens := s.tokenEvents[:0]
	tokenCutoff := now.Add(-TokenEventRetention)
	for _, event := range s.tokenEvents {
		if event.Timestamp.Before(tokenCutoff) {
			deleted++
			continue
		}
		keptTokens = append(keptTokens, event)
	}
	s.tokenEvents = keptTokens

	keptSecurity := s.securityEvents[:0]
	securityCutoff := now.Add(-SecurityEventRetention)
	for _, event := range s.securityEvents {
		if event.Timestamp.Before(securityCutoff) {
			deleted++
			continue
		}
		keptSecurity = append(keptSecurity, event)
	}
	s.securityEvents = keptSecurity

	return deleted, nil
}
