package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator validates a bearer access token end to end: signature,
// structure, expiry, and the revocation list. Implementations fail closed.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*AccessClaims, error)
}

// AccessClaims carries the identity attached to a validated access token.
type AccessClaims struct {
	UserID    string
	SessionID string
	JTI       string
	Scope     []string
}

type contextKeyUserID struct{}
type contextKeySessionID struct{}
type contextKeyJTI struct{}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(contextKeyUserID{}).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetSessionID retrieves the session ID from the context.
func GetSessionID(ctx context.Context) string {
	sessionID, ok := ctx.Value(contextKeySessionID{}).(string)
	if !ok {
		return ""
	}
	return sessionID
}

// GetTokenJTI retrieves the access token id from the context.
func GetTokenJTI(ctx context.Context) string {
	jti, ok := ctx.Value(contextKeyJTI{}).(string)
	if !ok {
		return ""
	}
	return jti
}

// RequireAuth guards protected routes. The validator already consults the
// revocation list, so a single call here covers signature, expiry, and
// revocation in one decision.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "

			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := validator.Validate(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, contextKeyUserID{}, claims.UserID)
			ctx = context.WithValue(ctx, contextKeySessionID{}, claims.SessionID)
			ctx = context.WithValue(ctx, contextKeyJTI{}, claims.JTI)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"kind":"unauthorized","message":"` + message + `"}`))
}
