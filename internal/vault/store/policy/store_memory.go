package policy

import (
	"context"
	"sync"

	"passq/internal/vault/models"
)

type deviceKey struct {
	userID      string
	fingerprint string
}

// InMemoryStore is a Store backed by in-process maps.
// Suitable for development and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	limits  map[string]*models.SessionLimits
	devices map[deviceKey]*models.TrustedDevice
}

// NewInMemory creates an empty in-memory policy store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		limits:  make(map[string]*models.SessionLimits),
		devices: make(map[deviceKey]*models.TrustedDevice),
	}
}

func (s *InMemoryStore) LimitsForUser(_ context.Context, userID string) (*models.SessionLimits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limits, ok := s.limits[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *limits
	return &copied, nil
}

func (s *InMemoryStore) SaveLimits(_ context.Context, limits *models.SessionLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *limits
	s.limits[limits.UserID] = &stored
	return nil
}

func (s *InMemoryStore) FindDevice(_ context.Context, userID, fingerprint string) (*models.TrustedDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[deviceKey{userID: userID, fingerprint: fingerprint}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *device
	copied.IPAddresses = append([]string(nil), device.IPAddresses...)
	return &copied, nil
}

func (s *InMemoryStore) SaveDevice(_ context.Context, device *models.TrustedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *device
	stored.IPAddresses = append([]string(nil), device.IPAddresses...)
	s.devices[deviceKey{userID: device.UserID, fingerprint: device.Fingerprint}] = &stored
	return nil
}

func (s *InMemoryStore) ListDevices(_ context.Context, userID string) ([]*models.TrustedDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.TrustedDevice, 0)
	for key, device := range s.devices {
		if key.userID != userID {
			continue
		}
		copied := *device
		copied.IPAddresses = append([]string(nil), device.IPAddresses...)
		result = append(result, &copied)
	}
	return result, nil
}
