package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count     int64
	expiresAt time.Time
}

// InMemoryCounter is a process-local fixed-window counter.
// Suitable for single-node deployments and tests.
type InMemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

// NewInMemory creates an in-memory counter.
func NewInMemory() *InMemoryCounter {
	return &InMemoryCounter{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// NewInMemoryWithClock creates an in-memory counter with an injected clock.
func NewInMemoryWithClock(now func() time.Time) *InMemoryCounter {
	c := NewInMemory()
	c.now = now
	return c
}

func (c *InMemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &windowEntry{expiresAt: now.Add(window)}
		c.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

func (c *InMemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Prune removes expired windows. Called periodically by the cleanup worker.
func (c *InMemoryCounter) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

var _ Counter = (*InMemoryCounter)(nil)
