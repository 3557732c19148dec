package service

import (
	"context"
	"errors"

	"passq/internal/platform/tracer"
	"passq/internal/token"
	"passq/internal/vault/store/session"
	dErrors "passq/pkg/domain-errors"
)

// ErrTokenRevoked is returned when a presented token's jti is on the
// revocation list or its session is no longer active.
var ErrTokenRevoked = dErrors.New(dErrors.CodeTokenRevoked, "token has been revoked")

// Validate checks an access token end to end: signature and structure,
// expiry, the revocation list, and the owning session's state. Any failure
// is a 401-equivalent outcome; revocation checks fail closed.
func (s *Service) Validate(ctx context.Context, accessToken string) (*token.Claims, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTokenValidate)
	var retErr error
	defer func() { span.End(retErr) }()

	claims, err := s.tokens.Parse(accessToken, token.TypeAccess)
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
		// Fail closed: an unanswerable revocation check rejects the token.
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "could not check revocation")
		return nil, retErr
	}
	if revoked {
		s.incrementValidationFailure("revoked")
		retErr = ErrTokenRevoked
		return nil, retErr
	}

	sess, err := s.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.incrementValidationFailure("session_missing")
			retErr = ErrTokenRevoked
			return nil, retErr
		}
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "could not load session")
		return nil, retErr
	}
	if !sess.IsActive() {
		s.incrementValidationFailure("session_revoked")
		retErr = ErrTokenRevoked
		return nil, retErr
	}
	if sess.IsExpired(s.now()) {
		s.incrementValidationFailure("session_expired")
		retErr = dErrors.New(dErrors.CodeTokenExpired, "session expired")
		return nil, retErr
	}

	if err := s.sessions.TouchActivity(ctx, sess.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "could not record session activity",
			"session_id", sess.ID, "error", err)
	}
	return claims, nil
}
