package service

import (
	"context"
	"sort"
	"time"

	"passq/internal/vault/models"
	"passq/internal/vault/store/session"
	dErrors "passq/pkg/domain-errors"
)

// SessionInfo is a session decorated with its current risk assessment.
type SessionInfo struct {
	Session         *models.Session
	RiskScore       int
	RequiredActions []string
}

// ListSessions returns the user's active sessions, most recently active
// first, each with a risk score derived from its unresolved security events.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*SessionInfo, error) {
	all, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list sessions")
	}
	now := s.now()

	infos := make([]*SessionInfo, 0, len(all))
	for _, sess := range all {
		if !sess.IsActive() || sess.IsExpired(now) {
			continue
		}
		var events []*models.SecurityEvent
		if s.analytics != nil {
			events, err = s.analytics.ListSecurityEventsBySession(ctx, sess.ID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load security events")
			}
		}
		unresolved := make([]*models.SecurityEvent, 0, len(events))
		for _, event := range events {
			if !event.Resolved {
				unresolved = append(unresolved, event)
			}
		}
		score := sess.RiskScore(unresolved, now)
		infos = append(infos, &SessionInfo{
			Session:         sess,
			RiskScore:       score,
			RequiredActions: sess.RequiredActions(unresolved, score, now),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Session.LastActivity.After(infos[j].Session.LastActivity)
	})
	return infos, nil
}

// TerminateSession ends one of the user's own sessions. Terminating a
// session that belongs to someone else reports not found.
func (s *Service) TerminateSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return session.ErrNotFound
	}
	_, err = s.terminateSession(ctx, sessionID, "user_request")
	return err
}

// Stats summarizes the user's token and session activity.
type Stats struct {
	ActiveSessions     int
	RevokedSessions    int
	TokenEventsLast24h int
	UnresolvedEvents   int
}

// UserStats computes activity statistics for one user.
func (s *Service) UserStats(ctx context.Context, userID string) (*Stats, error) {
	all, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list sessions")
	}
	now := s.now()

	stats := &Stats{}
	for _, sess := range all {
		if sess.IsActive() && !sess.IsExpired(now) {
			stats.ActiveSessions++
		}
		if sess.IsRevoked() {
			stats.RevokedSessions++
		}
	}
	if s.analytics != nil {
		for _, eventType := range []string{"token_issued", "token_refreshed", "token_reuse_detected", "login_failed"} {
			count, err := s.analytics.CountTokenEventsSince(ctx, userID, eventType, now.Add(-24*time.Hour))
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not count token events")
			}
			stats.TokenEventsLast24h += count
		}
		unresolved, err := s.analytics.ListUnresolvedSecurityEvents(ctx, userID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list security events")
		}
		stats.UnresolvedEvents = len(unresolved)
	}
	return stats, nil
}
