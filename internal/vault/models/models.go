// Package models contains pure domain entities for the vault: users,
// secrets, sessions, and token lifecycle records. Nothing here depends on
// transport or storage concerns.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "passq/pkg/domain-errors"
)

// UserStatus describes the account lifecycle state.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User represents a vault account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	// TOTPSecret is stored encrypted with the record keyring; empty until
	// MFA enrollment completes.
	TOTPSecret string
	MFAEnabled bool
	Status     UserStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// NewUser constructs a User and enforces basic invariants.
func NewUser(email, passwordHash string, now time.Time) (*User, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user email cannot be empty")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password hash cannot be empty")
	}
	return &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Secret is an encrypted vault record. EncryptedData holds the serialized
// blob (key version, nonce, ciphertext); plaintext never touches this type.
type Secret struct {
	ID            string
	UserID        string
	Name          string
	EncryptedData []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSecret constructs a Secret record around already-encrypted data.
func NewSecret(userID, name string, encryptedData []byte, now time.Time) (*Secret, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "secret owner cannot be empty")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "secret name cannot be empty")
	}
	if len(encryptedData) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "secret data cannot be empty")
	}
	return &Secret{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		EncryptedData: encryptedData,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SessionStatus describes the session lifecycle state.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusRevoked SessionStatus = "revoked"
)

// Session represents an authenticated session and its token lineage.
// AccessTokenJTI and RefreshTokenJTI always name the most recently issued
// pair; an incoming refresh token whose jti does not match RefreshTokenJTI
// is either stale or stolen.
type Session struct {
	ID     string
	UserID string
	Status SessionStatus

	// Current token pair.
	AccessTokenJTI  string
	RefreshTokenJTI string

	// Device binding and request metadata.
	DeviceFingerprint string
	DeviceName        string
	DeviceType        string
	IPAddress         string
	UserAgent         string
	LocationCountry   string

	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	RevokedAt    *time.Time
}

func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

func (s *Session) IsRevoked() bool {
	return s.Status == SessionStatusRevoked
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsMobile reports whether the session was created from a mobile device.
func (s *Session) IsMobile() bool {
	return s.DeviceType == "mobile" || s.DeviceType == "tablet"
}

// Revoke transitions the session to revoked state.
// Returns true if the transition occurred, false if already revoked.
func (s *Session) Revoke(at time.Time) bool {
	if s.IsRevoked() {
		return false
	}
	s.Status = SessionStatusRevoked
	if s.RevokedAt == nil || at.After(*s.RevokedAt) {
		s.RevokedAt = &at
	}
	return true
}

// RecordActivity updates the session's last activity time if the given time
// is after the current value.
func (s *Session) RecordActivity(at time.Time) {
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
}

// Rotate installs a freshly issued token pair and records activity.
func (s *Session) Rotate(accessJTI, refreshJTI string, at time.Time) {
	s.AccessTokenJTI = accessJTI
	s.RefreshTokenJTI = refreshJTI
	s.RecordActivity(at)
}

// ValidateForRefresh checks that the session can mint a new token pair.
func (s *Session) ValidateForRefresh(at time.Time) error {
	if s.IsRevoked() {
		return dErrors.New(dErrors.CodeTokenRevoked, "session has been revoked")
	}
	if s.IsExpired(at) {
		return dErrors.New(dErrors.CodeTokenExpired, "session expired")
	}
	return nil
}

// NewSession constructs a Session with lifecycle invariants enforced.
func NewSession(userID string, createdAt, expiresAt time.Time) (*Session, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session user cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session expiry must be after creation")
	}
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       SessionStatusActive,
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		LastActivity: createdAt,
	}, nil
}

// RevokedToken is a tombstone for an individually revoked token. Kept until
// well past the token's natural expiry so validation can reject it, then
// swept by the cleanup worker.
type RevokedToken struct {
	JTI       string
	UserID    string
	SessionID string
	TokenType string
	Reason    string
	RevokedAt time.Time
	// ExpiresAt is the token's original expiry; the tombstone itself is
	// retained for a further retention window beyond this.
	ExpiresAt time.Time
}
