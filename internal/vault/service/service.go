// Package service implements the vault security core: credential
// verification, token lifecycle, session policy, device trust, and the
// secret operations that tie them together.
package service

import (
	"context"
	"log/slog"
	"time"

	"passq/internal/audit"
	"passq/internal/crypto"
	"passq/internal/platform/metrics"
	"passq/internal/platform/tracer"
	"passq/internal/token"
	"passq/internal/vault/device"
	"passq/internal/vault/store/analytics"
	"passq/internal/vault/store/policy"
	"passq/internal/vault/store/revocation"
	"passq/internal/vault/store/rules"
	"passq/internal/vault/store/secret"
	"passq/internal/vault/store/session"
	"passq/internal/vault/store/user"
)

// AuditPublisher appends entries to the tamper-evident ledger.
// Satisfied by *audit.Publisher and *audit.Ledger wrappers.
type AuditPublisher interface {
	Emit(ctx context.Context, record audit.Record) error
}

// MFAVerifier checks a second factor for a user. Satisfied by *mfa.Service.
type MFAVerifier interface {
	Verify(ctx context.Context, userID, code string) error
	VerifyBackupCode(ctx context.Context, userID, code string) error
}

// Service is the vault security core.
type Service struct {
	users       user.Store
	sessions    session.Store
	secrets     secret.Store
	revocations revocation.Store
	policies    policy.Store
	tokens      *token.Service
	keyring     *crypto.Keyring
	devices     *device.Service

	analytics analytics.Store
	rules     rules.Store
	mfa       MFAVerifier
	auditor   AuditPublisher

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	now     func() time.Time

	defaultMaxConcurrent int
	defaultMaxPerDevice  int
}

// Option configures optional Service dependencies.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

// WithAnalytics enables token event and security event recording.
func WithAnalytics(store analytics.Store) Option {
	return func(s *Service) { s.analytics = store }
}

// WithRules enables monitoring rule evaluation on login and refresh.
func WithRules(store rules.Store) Option {
	return func(s *Service) { s.rules = store }
}

// WithDefaultLimits overrides the fallback session caps applied to users
// without an explicit policy row. Zero values keep the built-in defaults.
func WithDefaultLimits(maxConcurrent, maxPerDevice int) Option {
	return func(s *Service) {
		s.defaultMaxConcurrent = maxConcurrent
		s.defaultMaxPerDevice = maxPerDevice
	}
}

// WithMFA enables second-factor checks during login.
func WithMFA(verifier MFAVerifier) Option {
	return func(s *Service) { s.mfa = verifier }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the vault service.
func New(
	users user.Store,
	sessions session.Store,
	secrets secret.Store,
	revocations revocation.Store,
	policies policy.Store,
	tokens *token.Service,
	keyring *crypto.Keyring,
	devices *device.Service,
	opts ...Option,
) *Service {
	s := &Service{
		users:       users,
		sessions:    sessions,
		secrets:     secrets,
		revocations: revocations,
		policies:    policies,
		tokens:      tokens,
		keyring:     keyring,
		devices:     devices,
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
