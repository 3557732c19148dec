package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passq/internal/vault/models"
)

func TestInMemoryStore_Limits(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, err := store.LimitsForUser(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	limits := models.DefaultSessionLimits("user-1")
	limits.EnforceSingleSession = true
	require.NoError(t, store.SaveLimits(ctx, limits))

	found, err := store.LimitsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, found.EnforceSingleSession)
	assert.Equal(t, models.DefaultMaxConcurrentSessions, found.MaxConcurrentSessions)

	// Mutating the returned copy must not leak into the store.
	found.MaxConcurrentSessions = 1
	again, err := store.LimitsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxConcurrentSessions, again.MaxConcurrentSessions)
}

func TestInMemoryStore_Devices(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	device := models.NewTrustedDevice("user-1", "fp-1", "Chrome on Linux", "desktop", "192.0.2.10", now)
	require.NoError(t, store.SaveDevice(ctx, device))

	found, err := store.FindDevice(ctx, "user-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrustLevelUntrusted, found.TrustLevel)
	assert.Equal(t, []string{"192.0.2.10"}, found.IPAddresses)

	_, err = store.FindDevice(ctx, "user-1", "fp-other")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindDevice(ctx, "user-2", "fp-1")
	assert.ErrorIs(t, err, ErrNotFound)

	found.RecordSeen("198.51.100.7", now.Add(time.Hour))
	found.Promote(now.Add(time.Hour))
	require.NoError(t, store.SaveDevice(ctx, found))

	updated, err := store.FindDevice(ctx, "user-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrustLevelTrusted, updated.TrustLevel)
	assert.Equal(t, 2, updated.SessionCount)
	assert.Len(t, updated.IPAddresses, 2)
}

func TestInMemoryStore_ListDevices(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.SaveDevice(ctx, models.NewTrustedDevice("user-1", "fp-1", "Chrome on Linux", "desktop", "", now)))
	require.NoError(t, store.SaveDevice(ctx, models.NewTrustedDevice("user-1", "fp-2", "Safari on iOS", "mobile", "", now)))
	require.NoError(t, store.SaveDevice(ctx, models.NewTrustedDevice("user-2", "fp-3", "Firefox on Windows", "desktop", "", now)))

	devices, err := store.ListDevices(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}
