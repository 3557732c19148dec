// Package token issues and verifies the vault's signed bearer tokens.
//
// Access and refresh tokens are HS256 JWTs. A token_type claim keeps the two
// kinds from being swapped, and every token carries a random jti so it can be
// individually revoked and (for refresh tokens) consumed exactly once.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "passq/pkg/domain-errors"
)

// Token types carried in the token_type claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims is the claim set for both access and refresh tokens.
type Claims struct {
	SessionID string   `json:"session_id"`
	TokenType string   `json:"token_type"`
	Scope     []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and parses vault tokens.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a token service.
func New(signingKey []byte, issuer, audience string, accessTTL, refreshTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate jti")
	}
	return hex.EncodeToString(b), nil
}

// IssueAccess signs a new access token for the session.
// Returns the signed token and its jti.
func (s *Service) IssueAccess(_ context.Context, userID, sessionID string, scope []string) (string, string, error) {
	return s.issue(userID, sessionID, TypeAccess, scope, s.accessTTL)
}

// IssueRefresh signs a new refresh token for the session.
// Returns the signed token and its jti.
func (s *Service) IssueRefresh(_ context.Context, userID, sessionID string) (string, string, error) {
	return s.issue(userID, sessionID, TypeRefresh, nil, s.refreshTTL)
}

func (s *Service) issue(userID, sessionID, tokenType string, scope []string, ttl time.Duration) (string, string, error) {
	jti, err := newJTI()
	if err != nil {
		return "", "", err
	}
	now := s.now()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: sessionID,
		TokenType: tokenType,
		Scope:     scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	})

	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	return signed, jti, nil
}

// Parse verifies signature, expiry, issuer, audience, and token type.
// Failures are distinguishable by code: CodeTokenExpired for expired tokens,
// CodeSignatureInvalid for bad signatures, CodeTokenMalformed otherwise.
func (s *Service) Parse(tokenString, expectedType string) (*Claims, error) {
	return s.parse(tokenString, expectedType, false)
}

// ParseAllowExpired verifies everything Parse does except expiry.
// Used by revocation flows that must extract the jti from expired tokens.
// The signature is still fully verified.
func (s *Service) ParseAllowExpired(tokenString, expectedType string) (*Claims, error) {
	return s.parse(tokenString, expectedType, true)
}

func (s *Service) parse(tokenString, expectedType string, allowExpired bool) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeTokenMalformed, "empty token")
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, dErrors.New(dErrors.CodeTokenExpired, "token expired")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, dErrors.New(dErrors.CodeSignatureInvalid, "invalid token signature")
		default:
			return nil, dErrors.New(dErrors.CodeTokenMalformed, "malformed token")
		}
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeSignatureInvalid, "invalid token")
	}

	if allowExpired {
		// WithoutClaimsValidation skips issuer and audience too, so check
		// them explicitly.
		if claims.Issuer != s.issuer {
			return nil, dErrors.New(dErrors.CodeTokenMalformed, "invalid token issuer")
		}
		if !audienceContains(claims.Audience, s.audience) {
			return nil, dErrors.New(dErrors.CodeTokenMalformed, "invalid token audience")
		}
	}

	if claims.TokenType != expectedType {
		return nil, dErrors.New(dErrors.CodeTokenMalformed, "unexpected token type")
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.ID == "" {
		return nil, dErrors.New(dErrors.CodeTokenMalformed, "missing required claims")
	}
	return claims, nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
