// Package mfa implements TOTP enrollment and verification with single-use
// backup codes. Verification attempts are rate limited per user.
package mfa

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"passq/internal/crypto"
	"passq/internal/platform/metrics"
	"passq/internal/ratelimit"
	"passq/internal/vault/models"
	"passq/internal/vault/store/analytics"
	"passq/internal/vault/store/user"
	dErrors "passq/pkg/domain-errors"
	"passq/pkg/secrets"
)

const (
	issuer = "passq"

	totpPeriod = 30
	totpSkew   = 1

	backupCodeCount = 10

	maxAttempts   = 5
	attemptWindow = 5 * time.Minute
)

// ErrRateLimited is returned when a user exceeds the verification attempt
// budget inside the window.
var ErrRateLimited = dErrors.New(dErrors.CodeRateLimited, "too many mfa attempts")

// ErrInvalidCode is returned for codes that fail verification.
var ErrInvalidCode = dErrors.New(dErrors.CodeInvalidCode, "invalid mfa code")

// ErrNotEnrolled is returned when verifying a user who has no TOTP secret.
var ErrNotEnrolled = dErrors.New(dErrors.CodeBadRequest, "mfa not enrolled")

// Enrollment is handed to the user exactly once at setup time. The secret
// and backup codes are never recoverable afterwards.
type Enrollment struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string
}

// Service implements the MFA lifecycle.
type Service struct {
	users   user.Store
	keyring *crypto.Keyring
	limiter ratelimit.Counter
	events  analytics.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the MFA service.
func New(users user.Store, keyring *crypto.Keyring, limiter ratelimit.Counter, events analytics.Store, opts ...Option) *Service {
	s := &Service{
		users:   users,
		keyring: keyring,
		limiter: limiter,
		events:  events,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enroll generates a fresh TOTP secret and backup codes for the user. The
// secret is stored encrypted; MFA stays disabled until the first successful
// Verify proves the user's authenticator works. Re-enrolling replaces any
// previous secret and invalidates old backup codes.
func (s *Service) Enroll(ctx context.Context, userID string) (*Enrollment, error) {
	account, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate totp secret")
	}

	encryptedSecret, err := s.keyring.EncryptString(key.Secret())
	if err != nil {
		return nil, err
	}

	plainCodes, hashedCodes, err := s.generateBackupCodes(userID)
	if err != nil {
		return nil, err
	}

	account.TOTPSecret = encryptedSecret
	account.MFAEnabled = false
	account.UpdatedAt = s.now()
	if err := s.users.Update(ctx, account); err != nil {
		return nil, err
	}
	if err := s.users.ReplaceBackupCodes(ctx, userID, hashedCodes); err != nil {
		return nil, err
	}

	s.logger.Info("mfa enrollment started", "user_id", userID)
	return &Enrollment{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: plainCodes,
	}, nil
}

// Verify checks a TOTP code. The first successful verification after
// enrollment activates MFA on the account. Codes from the adjacent time
// step are accepted to absorb clock drift.
func (s *Service) Verify(ctx context.Context, userID, code string) error {
	if err := s.checkRateLimit(ctx, userID); err != nil {
		return err
	}

	account, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if account.TOTPSecret == "" {
		return ErrNotEnrolled
	}

	secret, err := s.keyring.DecryptString(account.TOTPSecret)
	if err != nil {
		return err
	}

	valid, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not validate totp code")
	}
	if !valid {
		s.recordFailure(userID)
		return ErrInvalidCode
	}

	if !account.MFAEnabled {
		account.MFAEnabled = true
		account.UpdatedAt = s.now()
		if err := s.users.Update(ctx, account); err != nil {
			return err
		}
		s.logger.Info("mfa activated", "user_id", userID)
	}

	s.resetRateLimit(ctx, userID)
	return nil
}

// VerifyBackupCode consumes a single-use recovery code. A code that matches
// but was already consumed counts as invalid.
func (s *Service) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if err := s.checkRateLimit(ctx, userID); err != nil {
		return err
	}

	unused, err := s.users.ListUnusedBackupCodes(ctx, userID)
	if err != nil {
		return err
	}
	for _, candidate := range unused {
		if secrets.Verify(code, candidate.CodeHash) != nil {
			continue
		}
		err := s.users.MarkBackupCodeUsed(ctx, candidate.ID, s.now())
		if errors.Is(err, user.ErrCodeUsed) {
			break
		}
		if err != nil {
			return err
		}
		s.logger.Info("backup code consumed", "user_id", userID)
		s.resetRateLimit(ctx, userID)
		return nil
	}

	s.recordFailure(userID)
	return ErrInvalidCode
}

// Disable turns MFA off and discards the secret and any remaining backup
// codes.
func (s *Service) Disable(ctx context.Context, userID string) error {
	account, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	account.TOTPSecret = ""
	account.MFAEnabled = false
	account.UpdatedAt = s.now()
	if err := s.users.Update(ctx, account); err != nil {
		return err
	}
	if err := s.users.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return err
	}
	s.logger.Info("mfa disabled", "user_id", userID)
	return nil
}

func (s *Service) checkRateLimit(ctx context.Context, userID string) error {
	attempts, err := s.limiter.Increment(ctx, limitKey(userID), attemptWindow)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not track mfa attempts")
	}
	if attempts <= maxAttempts {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncrementMFARateLimited()
	}
	s.logger.Warn("mfa attempts rate limited", "user_id", userID, "attempts", attempts)
	if s.events != nil {
		event := models.NewSecurityEvent("", userID, "mfa_rate_limited", models.SeverityHigh,
			fmt.Sprintf("%d mfa attempts within %s", attempts, attemptWindow), s.now())
		if err := s.events.RecordSecurityEvent(ctx, event); err != nil {
			s.logger.Error("could not record security event", "error", err)
		}
	}
	return ErrRateLimited
}

func (s *Service) resetRateLimit(ctx context.Context, userID string) {
	if err := s.limiter.Reset(ctx, limitKey(userID)); err != nil {
		s.logger.Warn("could not reset mfa attempt counter", "user_id", userID, "error", err)
	}
}

func (s *Service) recordFailure(userID string) {
	if s.metrics != nil {
		s.metrics.IncrementMFAFailures()
	}
	s.logger.Warn("mfa verification failed", "user_id", userID)
}

func limitKey(userID string) string {
	return "mfa:" + userID
}

func (s *Service) generateBackupCodes(userID string) ([]string, []*models.BackupCode, error) {
	plain := make([]string, 0, backupCodeCount)
	hashed := make([]*models.BackupCode, 0, backupCodeCount)
	now := s.now()
	for i := 0; i < backupCodeCount; i++ {
		buf := make([]byte, 5)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate backup code")
		}
		code := hex.EncodeToString(buf)
		hash, err := secrets.Hash(code)
		if err != nil {
			return nil, nil, err
		}
		plain = append(plain, code)
		hashed = append(hashed, models.NewBackupCode(userID, hash, now))
	}
	return plain, hashed, nil
}
