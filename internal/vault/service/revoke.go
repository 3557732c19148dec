package service

import (
	"context"
	"errors"
	"time"

	"passq/internal/audit"
	"passq/internal/platform/tracer"
	"passq/internal/token"
	"passq/internal/vault/models"
	"passq/internal/vault/store/session"
	dErrors "passq/pkg/domain-errors"
)

// Logout revokes the session and tombstones its outstanding token pair.
// Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTokenRevoke, tracer.String(tracer.AttrSessionID, sessionID))
	var retErr error
	defer func() { span.End(retErr) }()

	sess, err := s.terminateSession(ctx, sessionID, "logout")
	if err != nil {
		retErr = err
		return err
	}
	if sess != nil {
		s.logAudit(ctx, audit.Record{
			EventType:  audit.EventUserLogout,
			UserID:     sess.UserID,
			ResourceID: sess.ID,
		})
	}
	return nil
}

// RevokeAllForUser terminates every active session the user has and
// tombstones all of their outstanding tokens. Returns the number of
// sessions revoked.
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	now := s.now()
	revoked, err := s.sessions.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "could not revoke sessions")
	}
	for _, sess := range revoked {
		s.tombstoneSessionTokens(ctx, sess, reason, now)
		s.incrementSessionsTerminated(reason)
		s.logAudit(ctx, audit.Record{
			EventType:  audit.EventSessionTerminated,
			UserID:     sess.UserID,
			ResourceID: sess.ID,
			Details:    reason,
		})
	}
	if len(revoked) > 0 {
		s.decrementActiveSessions(len(revoked))
	}
	s.logger.InfoContext(ctx, "revoked all sessions for user",
		"user_id", userID, "count", len(revoked), "reason", reason)
	return len(revoked), nil
}

// RevokeToken tombstones a single presented token regardless of its type.
// The token must carry a valid signature; expiry does not matter since
// tombstones outlive natural expiry anyway.
func (s *Service) RevokeToken(ctx context.Context, tokenString, reason string) error {
	claims, err := s.tokens.ParseAllowExpired(tokenString, token.TypeAccess)
	if err != nil {
		claims, err = s.tokens.ParseAllowExpired(tokenString, token.TypeRefresh)
	}
	if err != nil {
		return err
	}

	revokedToken := &models.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		TokenType: claims.TokenType,
		Reason:    reason,
		RevokedAt: s.now(),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.revocations.Revoke(ctx, revokedToken); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not store revocation")
	}
	s.incrementTokensRevoked(reason)
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventTokenRevoked,
		UserID:     claims.Subject,
		ResourceID: claims.SessionID,
		Details:    reason,
	})
	return nil
}

// terminateSession revokes one session and tombstones its current token
// pair. Returns the revoked session, or nil if it was already revoked.
func (s *Service) terminateSession(ctx context.Context, sessionID, reason string) (*models.Session, error) {
	now := s.now()
	sess, err := s.sessions.RevokeIfActive(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, session.ErrSessionRevoked) {
			return nil, nil
		}
		return nil, err
	}

	s.tombstoneSessionTokens(ctx, sess, reason, now)
	s.decrementActiveSessions(1)
	s.incrementSessionsTerminated(reason)
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventSessionTerminated,
		UserID:     sess.UserID,
		ResourceID: sess.ID,
		Details:    reason,
	})
	return sess, nil
}

// tombstoneSessionTokens adds both of the session's current jtis to the
// revocation list. The exact remaining lifetime of each token is unknown
// here, so the tombstone assumes a full TTL from now; erring long is safe
// because the sweep applies its retention on top of this expiry.
func (s *Service) tombstoneSessionTokens(ctx context.Context, sess *models.Session, reason string, now time.Time) {
	pairs := []struct {
		jti       string
		tokenType string
		ttl       time.Duration
	}{
		{sess.AccessTokenJTI, token.TypeAccess, s.tokens.AccessTTL()},
		{sess.RefreshTokenJTI, token.TypeRefresh, s.tokens.RefreshTTL()},
	}
	for _, pair := range pairs {
		if pair.jti == "" {
			continue
		}
		revokedToken := &models.RevokedToken{
			JTI:       pair.jti,
			UserID:    sess.UserID,
			SessionID: sess.ID,
			TokenType: pair.tokenType,
			Reason:    reason,
			RevokedAt: now,
			ExpiresAt: now.Add(pair.ttl),
		}
		if err := s.revocations.Revoke(ctx, revokedToken); err != nil {
			s.logger.ErrorContext(ctx, "could not tombstone token",
				"jti", pair.jti, "session_id", sess.ID, "error", err)
			continue
		}
		s.incrementTokensRevoked(reason)
	}
}
