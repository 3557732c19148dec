package session

import (
	"context"
	"sync"
	"time"

	"passq/internal/vault/models"
)

// InMemoryStore keeps sessions in memory for tests and single-node
// deployments. It intentionally favors clarity over performance.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// New constructs an empty in-memory session store.
func New() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[sessionID]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*models.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}
	return sessions, nil
}

func (s *InMemoryStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *InMemoryStore) Rotate(_ context.Context, sessionID, presentedJTI, newAccessJTI, newRefreshJTI string, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if session.IsRevoked() {
		return nil, ErrSessionRevoked
	}
	if session.IsExpired(now) {
		return nil, ErrSessionExpired
	}
	if session.RefreshTokenJTI != presentedJTI {
		return nil, ErrRefreshReused
	}

	session.Rotate(newAccessJTI, newRefreshJTI, now)
	copied := *session
	return &copied, nil
}

func (s *InMemoryStore) RevokeIfActive(_ context.Context, sessionID string, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if !session.Revoke(now) {
		return nil, ErrSessionRevoked
	}
	copied := *session
	return &copied, nil
}

func (s *InMemoryStore) RevokeAllForUser(_ context.Context, userID string, now time.Time) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := make([]*models.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID && session.Revoke(now) {
			copied := *session
			revoked = append(revoked, &copied)
		}
	}
	return revoked, nil
}

func (s *InMemoryStore) TouchActivity(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.RecordActivity(at)
	return nil
}

// DeleteExpired removes sessions that have expired or been idle too long.
// Times are injected for testability (no hidden time.Now() calls).
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time, idleCutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, session := range s.sessions {
		if session.ExpiresAt.Before(now) || session.LastActivity.Before(idleCutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ Store = (*InMemoryStore)(nil)
