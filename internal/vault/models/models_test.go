package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActiveSession(t *testing.T, now time.Time) *Session {
	t.Helper()
	s, err := NewSession("user-1", now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	return s
}

func TestNewSession_Invariants(t *testing.T) {
	now := time.Now()

	_, err := NewSession("", now, now.Add(time.Hour))
	require.Error(t, err)

	_, err = NewSession("user-1", now, now)
	require.Error(t, err)

	s, err := NewSession("user-1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, s.IsActive())
	assert.NotEmpty(t, s.ID)
}

func TestSession_Revoke(t *testing.T) {
	now := time.Now()
	s := newActiveSession(t, now)

	assert.True(t, s.Revoke(now))
	assert.True(t, s.IsRevoked())
	require.NotNil(t, s.RevokedAt)

	// Second revoke is a no-op and keeps the original timestamp.
	first := *s.RevokedAt
	assert.False(t, s.Revoke(now.Add(time.Hour)))
	assert.Equal(t, first, *s.RevokedAt)
}

func TestSession_ValidateForRefresh(t *testing.T) {
	now := time.Now()

	t.Run("active", func(t *testing.T) {
		s := newActiveSession(t, now)
		assert.NoError(t, s.ValidateForRefresh(now))
	})

	t.Run("revoked", func(t *testing.T) {
		s := newActiveSession(t, now)
		s.Revoke(now)
		assert.Error(t, s.ValidateForRefresh(now))
	})

	t.Run("expired", func(t *testing.T) {
		s := newActiveSession(t, now)
		assert.Error(t, s.ValidateForRefresh(now.Add(8*24*time.Hour)))
	})
}

func TestSession_Rotate(t *testing.T) {
	now := time.Now()
	s := newActiveSession(t, now)

	later := now.Add(time.Minute)
	s.Rotate("access-2", "refresh-2", later)
	assert.Equal(t, "access-2", s.AccessTokenJTI)
	assert.Equal(t, "refresh-2", s.RefreshTokenJTI)
	assert.Equal(t, later, s.LastActivity)
}

func TestSession_RiskScore(t *testing.T) {
	now := time.Now()

	t.Run("fresh session with device and location", func(t *testing.T) {
		s := newActiveSession(t, now)
		s.DeviceFingerprint = "fp"
		s.LocationCountry = "US"
		assert.Equal(t, 0, s.RiskScore(nil, now))
	})

	t.Run("unknown device and location", func(t *testing.T) {
		s := newActiveSession(t, now)
		assert.Equal(t, 30, s.RiskScore(nil, now))
	})

	t.Run("events add weighted risk", func(t *testing.T) {
		s := newActiveSession(t, now)
		s.DeviceFingerprint = "fp"
		s.LocationCountry = "US"
		events := []*SecurityEvent{
			NewSecurityEvent(s.ID, s.UserID, "concurrent_limit", SeverityLow, "", now),
			NewSecurityEvent(s.ID, s.UserID, "token_theft_detected", SeverityCritical, "", now),
		}
		assert.Equal(t, 45, s.RiskScore(events, now))
	})

	t.Run("age and inactivity", func(t *testing.T) {
		s := newActiveSession(t, now.Add(-8*24*time.Hour))
		s.DeviceFingerprint = "fp"
		s.LocationCountry = "US"
		s.ExpiresAt = now.Add(time.Hour)
		// Created 8 days ago, last active 8 days ago.
		assert.Equal(t, 25, s.RiskScore(nil, now))
	})

	t.Run("capped at 100", func(t *testing.T) {
		s := newActiveSession(t, now)
		events := make([]*SecurityEvent, 5)
		for i := range events {
			events[i] = NewSecurityEvent(s.ID, s.UserID, "x", SeverityCritical, "", now)
		}
		assert.Equal(t, 100, s.RiskScore(events, now))
	})
}

func TestSession_RequiredActions(t *testing.T) {
	now := time.Now()
	s := newActiveSession(t, now)

	assert.Empty(t, s.RequiredActions(nil, 10, now))
	assert.Equal(t, []string{"monitor_closely"}, s.RequiredActions(nil, 50, now))
	assert.Equal(t, []string{"require_mfa"}, s.RequiredActions(nil, 70, now))
	assert.Equal(t, []string{"require_mfa", "notify_user"}, s.RequiredActions(nil, 90, now))

	critical := []*SecurityEvent{NewSecurityEvent(s.ID, s.UserID, "x", SeverityCritical, "", now)}
	assert.Contains(t, s.RequiredActions(critical, 0, now), "immediate_review")

	resolved := NewSecurityEvent(s.ID, s.UserID, "x", SeverityCritical, "", now)
	resolved.Resolve(now)
	assert.NotContains(t, s.RequiredActions([]*SecurityEvent{resolved}, 0, now), "immediate_review")
}

func TestTrustedDevice_Lifecycle(t *testing.T) {
	now := time.Now()
	d := NewTrustedDevice("user-1", "fp-1", "Chrome on macOS", "desktop", "192.0.2.1", now)

	assert.Equal(t, TrustLevelUntrusted, d.TrustLevel)
	assert.Equal(t, 0, d.TrustScore)
	assert.Equal(t, 1, d.SessionCount)
	assert.False(t, d.IsBlocked())

	d.Promote(now)
	assert.Equal(t, TrustLevelTrusted, d.TrustLevel)

	d.Block(now)
	assert.True(t, d.IsBlocked())
}

func TestTrustedDevice_RecordSeen(t *testing.T) {
	now := time.Now()
	d := NewTrustedDevice("user-1", "fp-1", "", "desktop", "192.0.2.1", now)

	// Duplicate IPs are not re-added.
	d.RecordSeen("192.0.2.1", now.Add(time.Minute))
	assert.Len(t, d.IPAddresses, 1)
	assert.Equal(t, 2, d.SessionCount)

	// Only the most recent 10 IPs are kept.
	for i := 2; i <= 14; i++ {
		d.RecordSeen(fmt.Sprintf("192.0.2.%d", i), now.Add(time.Duration(i)*time.Minute))
	}
	assert.Len(t, d.IPAddresses, 10)
	assert.Equal(t, "192.0.2.14", d.IPAddresses[len(d.IPAddresses)-1])
	assert.NotContains(t, d.IPAddresses, "192.0.2.1")
}

func TestTrustedDevice_TrustScore(t *testing.T) {
	now := time.Now()
	d := NewTrustedDevice("user-1", "fp-1", "", "desktop", "192.0.2.1", now)

	// Consistent sightings from the known IP build up the score.
	for i := 0; i < 5; i++ {
		d.RecordSeen("192.0.2.1", now.Add(time.Duration(i)*time.Minute))
	}
	assert.Equal(t, 25, d.TrustScore)
	assert.Equal(t, TrustLevelUntrusted, d.TrustLevel)

	// A previously unseen IP is an anomaly and costs score.
	d.RecordSeen("198.51.100.7", now.Add(time.Hour))
	assert.Equal(t, 10, d.TrustScore)
	assert.Equal(t, TrustLevelUntrusted, d.TrustLevel)

	// Exhausting the score on anomalies marks the device suspicious.
	d.RecordSeen("203.0.113.9", now.Add(2*time.Hour))
	assert.Equal(t, 0, d.TrustScore)
	assert.Equal(t, TrustLevelSuspicious, d.TrustLevel)

	// Sustained consistent history clears the flag.
	for i := 0; i < 4; i++ {
		d.RecordSeen("192.0.2.1", now.Add(3*time.Hour))
	}
	assert.Equal(t, 20, d.TrustScore)
	assert.Equal(t, TrustLevelUntrusted, d.TrustLevel)
}

func TestTrustedDevice_TrustScoreBounds(t *testing.T) {
	now := time.Now()
	d := NewTrustedDevice("user-1", "fp-1", "", "desktop", "192.0.2.1", now)

	for i := 0; i < 30; i++ {
		d.RecordSeen("192.0.2.1", now)
	}
	assert.Equal(t, maxTrustScore, d.TrustScore)

	// Trusted devices lose score on anomalies but keep their level; only
	// an operator blocks or demotes them.
	d.Promote(now)
	d.TrustScore = 5
	d.RecordSeen("198.51.100.7", now)
	assert.Equal(t, 0, d.TrustScore)
	assert.Equal(t, TrustLevelTrusted, d.TrustLevel)
}

func TestDefaultSessionLimits(t *testing.T) {
	limits := DefaultSessionLimits("user-1")
	assert.Equal(t, 5, limits.MaxConcurrentSessions)
	assert.Equal(t, 3, limits.MaxSessionsPerDevice)
	assert.Equal(t, 15*time.Minute, limits.SessionTimeout)
	assert.Equal(t, 7*24*time.Hour, limits.RefreshTimeout)
	assert.False(t, limits.EnforceSingleSession)
	assert.True(t, limits.AllowConcurrentMobile)
}

func TestSession_IsMobile(t *testing.T) {
	now := time.Now()
	s := newActiveSession(t, now)
	assert.False(t, s.IsMobile())
	s.DeviceType = "mobile"
	assert.True(t, s.IsMobile())
	s.DeviceType = "tablet"
	assert.True(t, s.IsMobile())
}
