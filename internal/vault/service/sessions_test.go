package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passq/internal/vault/store/session"
)

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	first := f.login(t, "alice@example.com")
	f.clock.Advance(time.Hour)
	second := f.loginFrom(t, "alice@example.com", mobileAgent, "10.0.0.2")

	infos, err := f.service.ListSessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// Most recently active first.
	assert.Equal(t, second.SessionID, infos[0].Session.ID)
	assert.Equal(t, first.SessionID, infos[1].Session.ID)

	t.Run("revoked sessions are hidden", func(t *testing.T) {
		require.NoError(t, f.service.Logout(ctx, first.SessionID))
		infos, err := f.service.ListSessions(ctx, userID)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, second.SessionID, infos[0].Session.ID)
	})
}

func TestListSessionsRiskScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	result := f.login(t, "alice@example.com")

	// A detected replay leaves a critical unresolved event behind; the
	// follow-up login's session is clean.
	f.clock.Advance(time.Minute)
	_, err := f.service.Refresh(ctx, result.RefreshToken, "10.0.0.1", testUserAgent)
	require.NoError(t, err)
	_, err = f.service.Refresh(ctx, result.RefreshToken, "203.0.113.9", "curl/8.0")
	require.ErrorIs(t, err, ErrReuseDetected)

	fresh := f.login(t, "alice@example.com")
	infos, err := f.service.ListSessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, fresh.SessionID, infos[0].Session.ID)
	// Logged in with a known device and no location data.
	assert.Equal(t, 10, infos[0].RiskScore)
}

func TestTerminateSessionOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	otherID := f.register(t, "mallory@example.com")
	result := f.login(t, "alice@example.com")

	t.Run("foreign session reads as not found", func(t *testing.T) {
		err := f.service.TerminateSession(ctx, otherID, result.SessionID)
		require.ErrorIs(t, err, session.ErrNotFound)

		sess, err := f.sessions.FindByID(ctx, result.SessionID)
		require.NoError(t, err)
		assert.True(t, sess.IsActive())
	})

	t.Run("owner can terminate", func(t *testing.T) {
		require.NoError(t, f.service.TerminateSession(ctx, userID, result.SessionID))
		_, err := f.service.Validate(ctx, result.AccessToken)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})
}

func TestUserStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	first := f.login(t, "alice@example.com")
	f.clock.Advance(time.Minute)
	f.loginFrom(t, "alice@example.com", mobileAgent, "10.0.0.2")
	require.NoError(t, f.service.Logout(ctx, first.SessionID))

	stats, err := f.service.UserStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.RevokedSessions)
	// Two logins issued tokens within the last day.
	assert.Equal(t, 2, stats.TokenEventsLast24h)
	assert.Zero(t, stats.UnresolvedEvents)
}
