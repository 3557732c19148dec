package service

import (
	"context"
	"errors"

	"passq/internal/audit"
	"passq/internal/platform/tracer"
	"passq/internal/token"
	"passq/internal/vault/models"
	"passq/internal/vault/store/session"
	dErrors "passq/pkg/domain-errors"
)

// ErrReuseDetected is returned when an already-rotated refresh token is
// presented again. By the time the caller sees it, the whole session has
// been terminated and its tokens revoked.
var ErrReuseDetected = dErrors.New(dErrors.CodeReuseDetected, "refresh token reuse detected")

// Refresh performs single-use refresh rotation: the presented refresh jti is
// atomically consumed and a new access+refresh pair is bound to the same
// session. A refresh token that was already rotated away triggers reuse
// detection and terminates the session.
func (s *Service) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTokenRefresh)
	var retErr error
	defer func() { span.End(retErr) }()

	claims, err := s.tokens.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		s.incrementValidationFailure(string(dErrors.CodeOf(err)))
		retErr = err
		return nil, err
	}
	span.SetAttributes(
		tracer.String(tracer.AttrUserID, claims.Subject),
		tracer.String(tracer.AttrSessionID, claims.SessionID),
	)

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "could not check revocation")
		return nil, retErr
	}
	if revoked {
		// An explicitly tombstoned refresh token (logout, policy action)
		// presented again is treated the same as a rotated-away one.
		retErr = s.handleReuse(ctx, claims, ipAddress, userAgent)
		return nil, retErr
	}

	// Remember the access jti this refresh supersedes. If another caller
	// wins the rotation race below, this value is simply never used.
	var oldAccessJTI string
	if prior, err := s.sessions.FindByID(ctx, claims.SessionID); err == nil {
		oldAccessJTI = prior.AccessTokenJTI
	}

	// Mint the replacement pair first; the rotation below only commits the
	// new jtis if this caller wins the single-use race.
	accessToken, accessJTI, err := s.tokens.IssueAccess(ctx, claims.Subject, claims.SessionID, claims.Scope)
	if err != nil {
		retErr = err
		return nil, err
	}
	newRefreshToken, refreshJTI, err := s.tokens.IssueRefresh(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		retErr = err
		return nil, err
	}

	sess, err := s.sessions.Rotate(ctx, claims.SessionID, claims.ID, accessJTI, refreshJTI, s.now())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshReused):
			retErr = s.handleReuse(ctx, claims, ipAddress, userAgent)
		case errors.Is(err, session.ErrSessionRevoked):
			s.incrementValidationFailure("session_revoked")
			retErr = ErrTokenRevoked
		case errors.Is(err, session.ErrSessionExpired):
			s.incrementValidationFailure("session_expired")
			retErr = dErrors.New(dErrors.CodeTokenExpired, "session expired")
		case errors.Is(err, session.ErrNotFound):
			s.incrementValidationFailure("session_missing")
			retErr = ErrTokenRevoked
		default:
			retErr = dErrors.Wrap(err, dErrors.CodeInternal, "could not rotate session")
		}
		return nil, retErr
	}

	// The consumed refresh jti and the superseded access jti are dead from
	// this point on.
	superseded := []*models.RevokedToken{
		{
			JTI:       claims.ID,
			UserID:    sess.UserID,
			SessionID: sess.ID,
			TokenType: token.TypeRefresh,
			Reason:    "rotated",
			RevokedAt: s.now(),
			ExpiresAt: claims.ExpiresAt.Time,
		},
	}
	if oldAccessJTI != "" {
		superseded = append(superseded, &models.RevokedToken{
			JTI:       oldAccessJTI,
			UserID:    sess.UserID,
			SessionID: sess.ID,
			TokenType: token.TypeAccess,
			Reason:    "rotated",
			RevokedAt: s.now(),
			ExpiresAt: s.now().Add(s.tokens.AccessTTL()),
		})
	}
	for _, tombstone := range superseded {
		if err := s.revocations.Revoke(ctx, tombstone); err != nil {
			s.logger.ErrorContext(ctx, "could not tombstone superseded token",
				"jti", tombstone.JTI, "error", err)
		}
	}

	s.incrementTokenRefreshes()
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventTokenRefreshed,
		UserID:     sess.UserID,
		ResourceID: sess.ID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
	})

	event := &models.TokenEvent{
		UserID:            sess.UserID,
		SessionID:         sess.ID,
		EventType:         "token_refreshed",
		TokenType:         token.TypeRefresh,
		Success:           true,
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
		DeviceFingerprint: sess.DeviceFingerprint,
		RiskScore:         s.sessionRiskScore(ctx, sess),
	}
	s.recordTokenEvent(ctx, event)
	s.evaluateRules(ctx, sess, event)

	return &LoginResult{
		UserID:       sess.UserID,
		SessionID:    sess.ID,
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

// handleReuse escalates a replayed refresh token: the session is terminated,
// its outstanding tokens are revoked, and a critical security event is
// raised. Always returns ErrReuseDetected.
func (s *Service) handleReuse(ctx context.Context, claims *token.Claims, ipAddress, userAgent string) error {
	s.incrementReuseDetections()

	sess, err := s.terminateSession(ctx, claims.SessionID, "token_theft_detected")
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			s.logger.ErrorContext(ctx, "could not terminate session after reuse",
				"session_id", claims.SessionID, "error", err)
		}
	}

	// Tombstone the replayed jti itself so repeated replays short-circuit.
	replayed := &models.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		TokenType: token.TypeRefresh,
		Reason:    "token_theft_detected",
		RevokedAt: s.now(),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.revocations.Revoke(ctx, replayed); err != nil {
		s.logger.ErrorContext(ctx, "could not tombstone replayed token",
			"jti", claims.ID, "error", err)
	}

	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventTokenReuseDetected,
		UserID:     claims.Subject,
		ResourceID: claims.SessionID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
	})
	theft := models.NewSecurityEvent(claims.SessionID, claims.Subject, "token_theft_detected",
		models.SeverityCritical, "an already-rotated refresh token was presented again", s.now())
	theft.ActionTaken = "session terminated, tokens revoked"
	theft.IPAddress = ipAddress
	theft.UserAgent = userAgent
	s.raiseSecurityEvent(ctx, theft)

	event := &models.TokenEvent{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		EventType: "token_reuse_detected",
		TokenType: token.TypeRefresh,
		Success:   false,
		ErrorCode: string(dErrors.CodeReuseDetected),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		RiskScore: 100,
	}
	s.recordTokenEvent(ctx, event)
	if sess != nil {
		s.evaluateRules(ctx, sess, event)
	}
	return ErrReuseDetected
}

// sessionRiskScore computes the session's current risk from its unresolved
// security events.
func (s *Service) sessionRiskScore(ctx context.Context, sess *models.Session) int {
	var events []*models.SecurityEvent
	if s.analytics != nil {
		var err error
		events, err = s.analytics.ListSecurityEventsBySession(ctx, sess.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "could not load security events for risk score",
				"session_id", sess.ID, "error", err)
		}
	}
	unresolved := events[:0]
	for _, event := range events {
		if !event.Resolved {
			unresolved = append(unresolved, event)
		}
	}
	return sess.RiskScore(unresolved, s.now())
}
