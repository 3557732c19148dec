package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passq/internal/vault/models"
)

func tokenEvent(userID, eventType string, at time.Time) *models.TokenEvent {
	return &models.TokenEvent{
		ID:        fmt.Sprintf("te-%s-%s-%d", userID, eventType, at.UnixNano()),
		UserID:    userID,
		SessionID: "sess-1",
		EventType: eventType,
		TokenType: "access",
		Success:   true,
		Timestamp: at,
	}
}

func TestInMemoryStore_TokenEvents(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-1", "token_issued", now.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-2", "token_issued", now)))

	events, err := store.ListTokenEvents(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// Newest first.
	assert.Equal(t, now.Add(4*time.Minute), events[0].Timestamp)
	assert.Equal(t, now.Add(2*time.Minute), events[2].Timestamp)
}

func TestInMemoryStore_CountTokenEventsSince(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-1", "token_refreshed", now.Add(-10*time.Minute))))
	require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-1", "token_refreshed", now.Add(-2*time.Minute))))
	require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-1", "token_refreshed", now)))
	require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-1", "token_issued", now)))

	count, err := store.CountTokenEventsSince(ctx, "user-1", "token_refreshed", now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInMemoryStore_SecurityEvents(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	first := models.NewSecurityEvent("sess-1", "user-1", "token_theft_detected", models.SeverityCritical, "refresh token replayed", now)
	second := models.NewSecurityEvent("sess-1", "user-1", "new_device", models.SeverityLow, "login from new device", now.Add(time.Minute))
	other := models.NewSecurityEvent("sess-2", "user-2", "new_device", models.SeverityLow, "login from new device", now)

	require.NoError(t, store.RecordSecurityEvent(ctx, first))
	require.NoError(t, store.RecordSecurityEvent(ctx, second))
	require.NoError(t, store.RecordSecurityEvent(ctx, other))

	bySession, err := store.ListSecurityEventsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, "token_theft_detected", bySession[0].EventType)

	require.NoError(t, store.ResolveSecurityEvent(ctx, first.ID, now.Add(time.Hour)))

	unresolved, err := store.ListUnresolvedSecurityEvents(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, second.ID, unresolved[0].ID)

	err = store.ResolveSecurityEvent(ctx, "missing", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_DeleteExpired(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-1", "token_issued", now.Add(-91*24*time.Hour))))
	require.NoError(t, store.RecordTokenEvent(ctx, tokenEvent("user-1", "token_issued", now.Add(-time.Hour))))

	oldEvent := models.NewSecurityEvent("sess-1", "user-1", "new_device", models.SeverityLow, "old", now.Add(-181*24*time.Hour))
	// Security events outlive token events of the same age.
	midEvent := models.NewSecurityEvent("sess-1", "user-1", "new_device", models.SeverityLow, "mid", now.Add(-120*24*time.Hour))
	require.NoError(t, store.RecordSecurityEvent(ctx, oldEvent))
	require.NoError(t, store.RecordSecurityEvent(ctx, midEvent))

	deleted, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	events, err := store.ListTokenEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	unresolved, err := store.ListUnresolvedSecurityEvents(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, midEvent.ID, unresolved[0].ID)
}
