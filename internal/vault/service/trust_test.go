package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passq/internal/vault/models"
)

func TestDeviceSightings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	f.login(t, "alice@example.com")

	devices, err := f.service.ListDevices(ctx, userID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	first := devices[0]
	assert.Equal(t, models.TrustLevelUntrusted, first.TrustLevel)
	assert.Equal(t, 1, first.SessionCount)
	assert.Equal(t, []string{"10.0.0.1"}, first.IPAddresses)

	t.Run("repeat login updates the record", func(t *testing.T) {
		f.clock.Advance(time.Hour)
		f.loginFrom(t, "alice@example.com", testUserAgent, "192.0.2.4")

		devices, err := f.service.ListDevices(ctx, userID)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, 2, devices[0].SessionCount)
		assert.Equal(t, []string{"10.0.0.1", "192.0.2.4"}, devices[0].IPAddresses)
		assert.Equal(t, f.clock.Now(), devices[0].LastSeen)
	})

	t.Run("different browser is a new device", func(t *testing.T) {
		f.loginFrom(t, "alice@example.com", mobileAgent, "10.0.0.2")
		devices, err := f.service.ListDevices(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, devices, 2)
	})
}

func TestConsistentLoginsRaiseTrustScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	for i := 0; i < 5; i++ {
		f.login(t, "alice@example.com")
		f.clock.Advance(time.Hour)
	}

	devices, err := f.service.ListDevices(ctx, userID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Greater(t, devices[0].TrustScore, 0)

	t.Run("anomalous IP lowers the score", func(t *testing.T) {
		before := devices[0].TrustScore
		f.loginFrom(t, "alice@example.com", testUserAgent, "198.51.100.7")

		devices, err := f.service.ListDevices(ctx, userID)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Less(t, devices[0].TrustScore, before)
	})
}

func TestNewDeviceRaisesEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	f.login(t, "alice@example.com")

	events, err := f.analytics.ListUnresolvedSecurityEvents(ctx, userID)
	require.NoError(t, err)
	var seen bool
	for _, e := range events {
		if e.EventType == "new_device" {
			seen = true
			assert.Equal(t, models.SeverityLow, e.Severity)
		}
	}
	assert.True(t, seen)
}

func TestPromoteDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	f.login(t, "alice@example.com")

	devices, err := f.service.ListDevices(ctx, userID)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	require.NoError(t, f.service.PromoteDevice(ctx, userID, devices[0].Fingerprint))

	devices, err = f.service.ListDevices(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.TrustLevelTrusted, devices[0].TrustLevel)

	t.Run("unknown fingerprint", func(t *testing.T) {
		err := f.service.PromoteDevice(ctx, userID, "no-such-fingerprint")
		require.Error(t, err)
	})
}

func TestBlockDeviceTerminatesItsSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	desktop := f.login(t, "alice@example.com")
	f.clock.Advance(time.Minute)
	mobile := f.loginFrom(t, "alice@example.com", mobileAgent, "10.0.0.2")

	desktopSess, err := f.sessions.FindByID(ctx, desktop.SessionID)
	require.NoError(t, err)
	require.NoError(t, f.service.BlockDevice(ctx, userID, desktopSess.DeviceFingerprint))

	// Only the blocked device's session dies.
	_, err = f.service.Validate(ctx, desktop.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
	_, err = f.service.Validate(ctx, mobile.AccessToken)
	require.NoError(t, err)
}
