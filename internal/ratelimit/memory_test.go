package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCounter_Increment(t *testing.T) {
	c := NewInMemory()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, err := c.Increment(ctx, "user-1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// Independent keys do not share windows.
	count, err := c.Increment(ctx, "user-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInMemoryCounter_WindowExpiry(t *testing.T) {
	now := time.Now()
	c := NewInMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := c.Increment(ctx, "user-1", 5*time.Minute)
	require.NoError(t, err)
	_, err = c.Increment(ctx, "user-1", 5*time.Minute)
	require.NoError(t, err)

	// Advance past the window; the counter starts over.
	now = now.Add(5*time.Minute + time.Second)
	count, err := c.Increment(ctx, "user-1", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInMemoryCounter_Reset(t *testing.T) {
	c := NewInMemory()
	ctx := context.Background()

	_, err := c.Increment(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, c.Reset(ctx, "user-1"))

	count, err := c.Increment(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInMemoryCounter_Concurrent(t *testing.T) {
	c := NewInMemory()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Increment(ctx, "shared", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := c.Increment(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), count)
}

func TestInMemoryCounter_Prune(t *testing.T) {
	now := time.Now()
	c := NewInMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := c.Increment(ctx, "stale", time.Minute)
	require.NoError(t, err)
	_, err = c.Increment(ctx, "fresh", time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.Prune())
}
