package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	first := f.login(t, "alice@example.com")

	f.clock.Advance(5 * time.Minute)
	second, err := f.service.Refresh(ctx, first.RefreshToken, "10.0.0.1", testUserAgent)
	require.NoError(t, err)
	assert.Equal(t, userID, second.UserID)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The new pair works; the superseded pair does not.
	_, err = f.service.Validate(ctx, second.AccessToken)
	require.NoError(t, err)
	_, err = f.service.Validate(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	sess, err := f.sessions.FindByID(ctx, first.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsActive())
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	result := f.login(t, "alice@example.com")

	_, err := f.service.Refresh(context.Background(), result.AccessToken, "10.0.0.1", testUserAgent)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenMalformed))
}

func TestRefreshReuseTerminatesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	first := f.login(t, "alice@example.com")

	f.clock.Advance(time.Minute)
	second, err := f.service.Refresh(ctx, first.RefreshToken, "10.0.0.1", testUserAgent)
	require.NoError(t, err)

	// Replaying the consumed refresh token is treated as theft.
	_, err = f.service.Refresh(ctx, first.RefreshToken, "203.0.113.9", "curl/8.0")
	require.ErrorIs(t, err, ErrReuseDetected)

	sess, err := f.sessions.FindByID(ctx, first.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsRevoked())

	// The whole session's outstanding tokens are dead, including the pair
	// the legitimate holder received from the rotation.
	_, err = f.service.Validate(ctx, second.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
	_, err = f.service.Refresh(ctx, second.RefreshToken, "10.0.0.1", testUserAgent)
	require.Error(t, err)

	events, err := f.analytics.ListSecurityEventsBySession(ctx, first.SessionID)
	require.NoError(t, err)
	var theft *models.SecurityEvent
	for _, e := range events {
		if e.EventType == "token_theft_detected" {
			theft = e
		}
	}
	require.NotNil(t, theft)
	assert.Equal(t, models.SeverityCritical, theft.Severity)
	assert.Equal(t, userID, theft.UserID)

	t.Run("repeated replay short-circuits", func(t *testing.T) {
		_, err := f.service.Refresh(ctx, first.RefreshToken, "203.0.113.9", "curl/8.0")
		require.ErrorIs(t, err, ErrReuseDetected)
	})
}

func TestRefreshAfterLogoutIsReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com")
	result := f.login(t, "alice@example.com")

	require.NoError(t, f.service.Logout(ctx, result.SessionID))

	_, err := f.service.Refresh(ctx, result.RefreshToken, "10.0.0.1", testUserAgent)
	require.ErrorIs(t, err, ErrReuseDetected)
}

func TestRefreshExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	limits := models.DefaultSessionLimits(userID)
	limits.RefreshTimeout = time.Hour
	require.NoError(t, f.service.SetSessionLimits(ctx, limits))

	result := f.login(t, "alice@example.com")
	f.clock.Advance(2 * time.Hour)

	_, err := f.service.Refresh(ctx, result.RefreshToken, "10.0.0.1", testUserAgent)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenExpired))
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice@example.com")
	result := f.login(t, "alice@example.com")

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := f.service.Refresh(ctx, result.RefreshToken, "10.0.0.1", testUserAgent)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	winners, reuse := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case dErrors.HasCode(err, dErrors.CodeReuseDetected):
			reuse++
		case dErrors.HasCode(err, dErrors.CodeTokenRevoked):
			// A late loser can observe the session already terminated by an
			// earlier loser's escalation.
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller may consume the refresh token")
	assert.NotZero(t, reuse, "losers trigger reuse detection")

	// The race itself is proof of theft, so the session and everything it
	// issued are revoked.
	sess, err := f.sessions.FindByID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsRevoked())
}

func TestTokenLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	login := f.login(t, "alice@example.com")
	claims, err := f.service.Validate(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)

	f.clock.Advance(10 * time.Minute)
	refreshed, err := f.service.Refresh(ctx, login.RefreshToken, "10.0.0.1", testUserAgent)
	require.NoError(t, err)

	// The rotated pair is live.
	_, err = f.service.Validate(ctx, refreshed.AccessToken)
	require.NoError(t, err)

	// An attacker replays the original refresh token.
	_, err = f.service.Refresh(ctx, login.RefreshToken, "203.0.113.7", "curl/8.0")
	require.ErrorIs(t, err, ErrReuseDetected)

	// Containment is session-wide: the legitimate pair is revoked too.
	_, err = f.service.Validate(ctx, refreshed.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
	_, err = f.service.Refresh(ctx, refreshed.RefreshToken, "10.0.0.1", testUserAgent)
	require.Error(t, err)

	// Recovery is a fresh login.
	again := f.login(t, "alice@example.com")
	_, err = f.service.Validate(ctx, again.AccessToken)
	require.NoError(t, err)
}
