package service

import (
	"context"
	"testing"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passq/internal/audit"
	"passq/internal/token"
	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.service.Register(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.NotEqual(t, testPassword, account.PasswordHash)

	t.Run("weak password rejected", func(t *testing.T) {
		_, err := f.service.Register(ctx, "bob@example.com", "short")
		require.Error(t, err)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := f.service.Register(ctx, "alice@example.com", testPassword)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	result := f.login(t, "alice@example.com")
	assert.Equal(t, userID, result.UserID)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, f.tokens.AccessTTL(), result.ExpiresIn)

	claims, err := f.service.Validate(ctx, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, result.SessionID, claims.SessionID)

	sess, err := f.sessions.FindByID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsActive())
	assert.NotEmpty(t, sess.DeviceFingerprint)
	assert.Equal(t, "desktop", sess.DeviceType)

	entries, err := f.auditStore.ListByUser(ctx, userID, 10)
	require.NoError(t, err)
	types := make([]audit.EventType, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, audit.EventUserLogin)
	assert.Contains(t, types, audit.EventTokenIssued)
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{
			Credential: PasswordCredential{Email: "alice@example.com", Password: "Wrong-Pass1"},
			UserAgent:  testUserAgent,
		})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown account gets the same error", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{
			Credential: PasswordCredential{Email: "nobody@example.com", Password: testPassword},
			UserAgent:  testUserAgent,
		})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("missing credential", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{UserAgent: testUserAgent})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("disabled account", func(t *testing.T) {
		account, err := f.users.FindByID(ctx, userID)
		require.NoError(t, err)
		account.Status = models.UserStatusDisabled
		require.NoError(t, f.users.Update(ctx, account))

		_, err = f.service.Login(ctx, LoginRequest{
			Credential: PasswordCredential{Email: "alice@example.com", Password: testPassword},
			UserAgent:  testUserAgent,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("failed logins are recorded", func(t *testing.T) {
		events, err := f.analytics.ListTokenEvents(ctx, "", 50)
		require.NoError(t, err)
		failed := 0
		for _, e := range events {
			if e.EventType == "login_failed" {
				failed++
			}
		}
		assert.NotZero(t, failed)
	})
}

func TestLoginFederated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	result, err := f.service.Login(ctx, LoginRequest{
		Credential: FederatedAssertion{
			Provider: "corp-idp",
			Subject:  "idp-user-42",
			Email:    "alice@example.com",
		},
		UserAgent: testUserAgent,
	})
	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)

	t.Run("unmapped assertion rejected", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{
			Credential: FederatedAssertion{Provider: "corp-idp", Subject: "x", Email: "ghost@example.com"},
			UserAgent:  testUserAgent,
		})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginWithMFA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	enrollment, err := f.mfa.Enroll(ctx, userID)
	require.NoError(t, err)
	activate, err := totp.GenerateCode(enrollment.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.mfa.Verify(ctx, userID, activate))

	t.Run("code required once enabled", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{
			Credential: PasswordCredential{Email: "alice@example.com", Password: testPassword},
			UserAgent:  testUserAgent,
		})
		require.ErrorIs(t, err, ErrMFARequired)
	})

	t.Run("totp code accepted", func(t *testing.T) {
		code, err := totp.GenerateCode(enrollment.Secret, f.clock.Now())
		require.NoError(t, err)
		result, err := f.service.Login(ctx, LoginRequest{
			Credential: PasswordCredential{Email: "alice@example.com", Password: testPassword},
			MFACode:    code,
			UserAgent:  testUserAgent,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
	})

	t.Run("backup code accepted", func(t *testing.T) {
		result, err := f.service.Login(ctx, LoginRequest{
			Credential: PasswordCredential{Email: "alice@example.com", Password: testPassword},
			MFACode:    enrollment.BackupCodes[0],
			UserAgent:  testUserAgent,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
	})

	t.Run("wrong code rejected", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{
			Credential: PasswordCredential{Email: "alice@example.com", Password: testPassword},
			MFACode:    "000000",
			UserAgent:  testUserAgent,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCode))
	})
}

func TestLoginBlockedDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")

	f.login(t, "alice@example.com")

	devices, err := f.service.ListDevices(ctx, userID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.NoError(t, f.service.BlockDevice(ctx, userID, devices[0].Fingerprint))

	_, err = f.service.Login(ctx, LoginRequest{
		Credential: PasswordCredential{Email: "alice@example.com", Password: testPassword},
		UserAgent:  testUserAgent,
	})
	require.ErrorIs(t, err, ErrDeviceBlocked)

	// Blocking also terminated the device's existing session.
	assert.Empty(t, f.activeSessions(t, userID))
}

func TestLoginIssuesDistinctJTIs(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		result := f.login(t, "alice@example.com")
		sess, err := f.sessions.FindByID(context.Background(), result.SessionID)
		require.NoError(t, err)
		for _, jti := range []string{sess.AccessTokenJTI, sess.RefreshTokenJTI} {
			assert.False(t, seen[jti], "jti reused: %s", jti)
			seen[jti] = true
		}
	}

	claims, err := f.tokens.Parse(f.login(t, "alice@example.com").RefreshToken, token.TypeRefresh)
	require.NoError(t, err)
	assert.False(t, seen[claims.ID])
}
