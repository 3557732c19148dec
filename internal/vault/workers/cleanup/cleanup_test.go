package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"passq/internal/ratelimit"
	"passq/internal/vault/models"
	"passq/internal/vault/store/analytics"
	"passq/internal/vault/store/revocation"
	"passq/internal/vault/store/session"
)

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	sessions := session.New()
	revocations := revocation.NewInMemory()
	events := analytics.NewInMemory()

	expired := &models.Session{
		ID:           uuid.NewString(),
		UserID:       "u1",
		Status:       models.SessionStatusActive,
		CreatedAt:    now.Add(-48 * time.Hour),
		ExpiresAt:    now.Add(-time.Hour),
		LastActivity: now.Add(-2 * time.Hour),
	}
	require.NoError(t, sessions.Create(ctx, expired))

	idle := &models.Session{
		ID:           uuid.NewString(),
		UserID:       "u1",
		Status:       models.SessionStatusActive,
		CreatedAt:    now.Add(-60 * 24 * time.Hour),
		ExpiresAt:    now.Add(24 * time.Hour),
		LastActivity: now.Add(-40 * 24 * time.Hour),
	}
	require.NoError(t, sessions.Create(ctx, idle))

	live := &models.Session{
		ID:           uuid.NewString(),
		UserID:       "u1",
		Status:       models.SessionStatusActive,
		CreatedAt:    now.Add(-time.Hour),
		ExpiresAt:    now.Add(24 * time.Hour),
		LastActivity: now.Add(-time.Minute),
	}
	require.NoError(t, sessions.Create(ctx, live))

	// One tombstone well past retention, one still inside it.
	require.NoError(t, revocations.Revoke(ctx, &models.RevokedToken{
		JTI:       "old-jti",
		UserID:    "u1",
		TokenType: "access",
		Reason:    "logout",
		RevokedAt: now.Add(-90 * 24 * time.Hour),
		ExpiresAt: now.Add(-60 * 24 * time.Hour),
	}))
	require.NoError(t, revocations.Revoke(ctx, &models.RevokedToken{
		JTI:       "recent-jti",
		UserID:    "u1",
		TokenType: "access",
		Reason:    "logout",
		RevokedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}))

	require.NoError(t, events.RecordTokenEvent(ctx, &models.TokenEvent{
		ID:        uuid.NewString(),
		UserID:    "u1",
		EventType: "token_issued",
		Timestamp: now.Add(-120 * 24 * time.Hour),
	}))
	require.NoError(t, events.RecordTokenEvent(ctx, &models.TokenEvent{
		ID:        uuid.NewString(),
		UserID:    "u1",
		EventType: "token_issued",
		Timestamp: now.Add(-time.Hour),
	}))

	svc, err := New(sessions, revocations, events,
		WithClock(func() time.Time { return now }),
		WithPruner(ratelimit.NewInMemory()),
	)
	require.NoError(t, err)

	res, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.DeletedSessions)
	require.Equal(t, 1, res.DeletedTombstones)
	require.Equal(t, 1, res.DeletedEvents)

	_, err = sessions.FindByID(ctx, expired.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = sessions.FindByID(ctx, idle.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = sessions.FindByID(ctx, live.ID)
	require.NoError(t, err)

	revoked, err := revocations.IsRevoked(ctx, "recent-jti")
	require.NoError(t, err)
	require.True(t, revoked)
	revoked, err = revocations.IsRevoked(ctx, "old-jti")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestNewRequiresStores(t *testing.T) {
	_, err := New(nil, revocation.NewInMemory(), analytics.NewInMemory())
	require.Error(t, err)
	_, err = New(session.New(), nil, analytics.NewInMemory())
	require.Error(t, err)
	_, err = New(session.New(), revocation.NewInMemory(), nil)
	require.Error(t, err)
}
