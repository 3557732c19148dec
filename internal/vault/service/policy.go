package service

import (
	"context"
	"errors"
	"sort"

	"passq/internal/vault/models"
	"passq/internal/vault/store/policy"
	dErrors "passq/pkg/domain-errors"
)

// limitsFor loads the user's session limits, falling back to defaults when
// none are configured.
func (s *Service) limitsFor(ctx context.Context, userID string) *models.SessionLimits {
	limits, err := s.policies.LimitsForUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, policy.ErrNotFound) {
			s.logger.WarnContext(ctx, "could not load session limits, using defaults",
				"user_id", userID, "error", err)
		}
		fallback := models.DefaultSessionLimits(userID)
		if s.defaultMaxConcurrent > 0 {
			fallback.MaxConcurrentSessions = s.defaultMaxConcurrent
		}
		if s.defaultMaxPerDevice > 0 {
			fallback.MaxSessionsPerDevice = s.defaultMaxPerDevice
		}
		return fallback
	}
	return limits
}

// SetSessionLimits installs an explicit per-user session policy.
func (s *Service) SetSessionLimits(ctx context.Context, limits *models.SessionLimits) error {
	if limits.UserID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "limits user cannot be empty")
	}
	if limits.MaxConcurrentSessions < 1 || limits.MaxSessionsPerDevice < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "session limits must be positive")
	}
	now := s.now()
	if limits.CreatedAt.IsZero() {
		limits.CreatedAt = now
	}
	limits.UpdatedAt = now
	return s.policies.SaveLimits(ctx, limits)
}

// admitSession enforces the user's session limits before a new session is
// created, evicting the least recently active sessions as needed. Order:
// concurrent cap, then per-device cap, then single-session mode. The device
// block check has already happened by the time this runs.
func (s *Service) admitSession(ctx context.Context, userID, fingerprint, deviceType string, limits *models.SessionLimits) error {
	now := s.now()
	all, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not list sessions")
	}

	active := make([]*models.Session, 0, len(all))
	for _, sess := range all {
		if sess.IsActive() && !sess.IsExpired(now) {
			active = append(active, sess)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActivity.Before(active[j].LastActivity)
	})

	// Concurrent cap: make room for the incoming session.
	for len(active) >= limits.MaxConcurrentSessions {
		if err := s.evictSession(ctx, active[0], "session_limit"); err != nil {
			return err
		}
		active = active[1:]
	}

	// Per-device cap. Mobile devices are exempt when concurrent mobile
	// sessions are allowed.
	if fingerprint != "" && !(limits.AllowConcurrentMobile && isMobileType(deviceType)) {
		onDevice := make([]*models.Session, 0)
		for _, sess := range active {
			if sess.DeviceFingerprint == fingerprint {
				onDevice = append(onDevice, sess)
			}
		}
		for len(onDevice) >= limits.MaxSessionsPerDevice {
			if err := s.evictSession(ctx, onDevice[0], "device_session_limit"); err != nil {
				return err
			}
			active = removeSession(active, onDevice[0].ID)
			onDevice = onDevice[1:]
		}
	}

	// Single-session mode: the incoming session replaces everything else.
	if limits.EnforceSingleSession {
		for _, sess := range active {
			if err := s.evictSession(ctx, sess, "single_session"); err != nil {
				return err
			}
		}
	}
	return nil
}

// evictSession terminates a session displaced by the admission policy and
// records the concurrent-login anomaly against it.
func (s *Service) evictSession(ctx context.Context, sess *models.Session, reason string) error {
	terminated, err := s.terminateSession(ctx, sess.ID, reason)
	if err != nil || terminated == nil {
		return err
	}
	s.raiseSecurityEvent(ctx, models.NewSecurityEvent(sess.ID, sess.UserID, "concurrent_login",
		models.SeverityMedium, "session displaced by "+reason, s.now()))
	return nil
}

func isMobileType(deviceType string) bool {
	return deviceType == "mobile" || deviceType == "tablet"
}

func removeSession(sessions []*models.Session, id string) []*models.Session {
	out := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != id {
			out = append(out, sess)
		}
	}
	return out
}
