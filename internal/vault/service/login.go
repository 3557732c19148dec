package service

import (
	"context"
	"time"

	"passq/internal/audit"
	"passq/internal/platform/tracer"
	"passq/internal/token"
	"passq/internal/vault/device"
	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
	"passq/pkg/secrets"
)

// ErrInvalidCredentials is returned for any credential failure. The message
// never distinguishes unknown accounts from wrong secrets.
var ErrInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// ErrMFARequired is returned when the account has MFA enabled and no code
// was supplied.
var ErrMFARequired = dErrors.New(dErrors.CodeUnauthorized, "mfa code required")

// Credential is a way of proving account ownership at login.
type Credential interface {
	// authenticate resolves the credential to a verified user.
	authenticate(ctx context.Context, s *Service) (*models.User, error)
	kind() string
}

// PasswordCredential authenticates with the account's master password.
type PasswordCredential struct {
	Email    string
	Password string
}

func (c PasswordCredential) kind() string { return "password" }

func (c PasswordCredential) authenticate(ctx context.Context, s *Service) (*models.User, error) {
	if c.Email == "" || c.Password == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := s.users.FindByEmail(ctx, c.Email)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			// Burn a comparable amount of time so unknown accounts are not
			// distinguishable by response latency.
			_ = secrets.Verify(c.Password, phantomHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := secrets.Verify(c.Password, account.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// phantomHash is a bcrypt hash of a throwaway value, used only to equalize
// verification timing for unknown accounts.
const phantomHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// FederatedAssertion authenticates with an assertion already verified by an
// upstream identity provider. The vault only maps it to a local account;
// federation protocol handling happens outside this service.
type FederatedAssertion struct {
	Provider string
	Subject  string
	Email    string
}

func (c FederatedAssertion) kind() string { return "federated" }

func (c FederatedAssertion) authenticate(ctx context.Context, s *Service) (*models.User, error) {
	if c.Provider == "" || c.Subject == "" || c.Email == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := s.users.FindByEmail(ctx, c.Email)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return account, nil
}

// LoginRequest carries a credential plus the request metadata used for
// device binding and policy decisions.
type LoginRequest struct {
	Credential      Credential
	MFACode         string
	IPAddress       string
	UserAgent       string
	LocationCountry string
}

// LoginResult is the issued session and token pair.
type LoginResult struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Register creates a vault account. The password must meet the minimum
// strength policy.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	if err := secrets.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, err
	}
	account, err := models.NewUser(email, hash, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, account); err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.Record{
		EventType: audit.EventUserRegistration,
		UserID:    account.ID,
	})
	return account, nil
}

// Login verifies the credential and second factor, admits the session under
// the user's policy, and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLogin)
	var retErr error
	defer func() { span.End(retErr) }()

	if req.Credential == nil {
		retErr = ErrInvalidCredentials
		return nil, retErr
	}

	account, err := req.Credential.authenticate(ctx, s)
	if err != nil {
		s.incrementAuthFailure()
		s.recordTokenEvent(ctx, &models.TokenEvent{
			EventType: "login_failed",
			Success:   false,
			ErrorCode: string(dErrors.CodeOf(err)),
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
		})
		s.logger.WarnContext(ctx, "login rejected", "kind", req.Credential.kind(), "error", err)
		retErr = err
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrUserID, account.ID))

	if !account.IsActive() {
		s.incrementAuthFailure()
		retErr = dErrors.New(dErrors.CodeForbidden, "account disabled")
		return nil, retErr
	}

	if account.MFAEnabled {
		if err := s.verifySecondFactor(ctx, account.ID, req.MFACode); err != nil {
			s.incrementAuthFailure()
			retErr = err
			return nil, err
		}
	}

	fingerprint := s.devices.ComputeFingerprint(req.UserAgent)
	deviceType := device.DeviceType(req.UserAgent)

	if err := s.registerDevice(ctx, account.ID, fingerprint, deviceType, req); err != nil {
		retErr = err
		return nil, err
	}

	limits := s.limitsFor(ctx, account.ID)
	if err := s.admitSession(ctx, account.ID, fingerprint, deviceType, limits); err != nil {
		retErr = err
		return nil, err
	}

	now := s.now()
	sess, err := models.NewSession(account.ID, now, now.Add(limits.RefreshTimeout))
	if err != nil {
		retErr = err
		return nil, err
	}
	sess.DeviceFingerprint = fingerprint
	sess.DeviceName = device.DisplayName(req.UserAgent)
	sess.DeviceType = deviceType
	sess.IPAddress = req.IPAddress
	sess.UserAgent = req.UserAgent
	sess.LocationCountry = req.LocationCountry

	accessToken, accessJTI, err := s.tokens.IssueAccess(ctx, account.ID, sess.ID, nil)
	if err != nil {
		retErr = err
		return nil, err
	}
	refreshToken, refreshJTI, err := s.tokens.IssueRefresh(ctx, account.ID, sess.ID)
	if err != nil {
		retErr = err
		return nil, err
	}
	sess.AccessTokenJTI = accessJTI
	sess.RefreshTokenJTI = refreshJTI

	if err := s.sessions.Create(ctx, sess); err != nil {
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "could not persist session")
		return nil, retErr
	}
	span.SetAttributes(tracer.String(tracer.AttrSessionID, sess.ID))

	s.incrementTokensIssued()
	s.incrementActiveSessions(1)
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventUserLogin,
		UserID:     account.ID,
		ResourceID: sess.ID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		Details:    req.Credential.kind(),
	})
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventTokenIssued,
		UserID:     account.ID,
		ResourceID: sess.ID,
		IPAddress:  req.IPAddress,
	})

	event := &models.TokenEvent{
		UserID:            account.ID,
		SessionID:         sess.ID,
		EventType:         "token_issued",
		TokenType:         token.TypeAccess,
		Success:           true,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		DeviceFingerprint: fingerprint,
		RiskScore:         sess.RiskScore(nil, now),
	}
	s.recordTokenEvent(ctx, event)
	s.evaluateRules(ctx, sess, event)

	return &LoginResult{
		UserID:       account.ID,
		SessionID:    sess.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

// verifySecondFactor accepts either a current TOTP code or an unused backup
// code.
func (s *Service) verifySecondFactor(ctx context.Context, userID, code string) error {
	if s.mfa == nil {
		return dErrors.New(dErrors.CodeInternal, "mfa verifier not configured")
	}
	if code == "" {
		return ErrMFARequired
	}
	err := s.mfa.Verify(ctx, userID, code)
	if err == nil {
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodeInvalidCode) {
		if s.mfa.VerifyBackupCode(ctx, userID, code) == nil {
			return nil
		}
		// Failure counters live in the mfa service; keep the audit trail here.
		s.logAudit(ctx, audit.Record{EventType: audit.EventMFAFailed, UserID: userID})
	}
	return err
}
