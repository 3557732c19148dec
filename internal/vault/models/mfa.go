package models

import (
	"time"

	"github.com/google/uuid"
)

// BackupCode is a single-use MFA recovery code. Only a bcrypt hash of the
// code is stored; the plaintext is shown to the user once at enrollment.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// NewBackupCode wraps an already-hashed recovery code.
func NewBackupCode(userID, codeHash string, now time.Time) *BackupCode {
	return &BackupCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  codeHash,
		CreatedAt: now,
	}
}
