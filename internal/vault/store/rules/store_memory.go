package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"passq/internal/vault/models"
)

// InMemoryStore is a Store backed by an in-process map.
// Suitable for development and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*models.MonitoringRule
}

// NewInMemory creates an empty in-memory rule store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{rules: make(map[string]*models.MonitoringRule)}
}

func (s *InMemoryStore) Save(_ context.Context, rule *models.MonitoringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rule
	s.rules[rule.ID] = &stored
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.MonitoringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rule
	return &copied, nil
}

func (s *InMemoryStore) ListEnabled(_ context.Context) ([]*models.MonitoringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.MonitoringRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		copied := *rule
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *InMemoryStore) RecordTrigger(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return ErrNotFound
	}
	rule.RecordTrigger(at)
	return nil
}
