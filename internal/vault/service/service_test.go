package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"passq/internal/audit"
	"passq/internal/crypto"
	"passq/internal/mfa"
	"passq/internal/ratelimit"
	"passq/internal/token"
	"passq/internal/vault/device"
	"passq/internal/vault/models"
	"passq/internal/vault/store/analytics"
	"passq/internal/vault/store/policy"
	"passq/internal/vault/store/revocation"
	"passq/internal/vault/store/rules"
	"passq/internal/vault/store/secret"
	"passq/internal/vault/store/session"
	"passq/internal/vault/store/user"
)

var testStart = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

const (
	testPassword  = "Correct-Horse7"
	testUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	mobileAgent   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

// testClock is a mutex-guarded clock so concurrent requests in tests share a
// consistent view of time.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	service     *Service
	mfa         *mfa.Service
	users       *user.InMemoryStore
	sessions    *session.InMemoryStore
	secrets     *secret.InMemoryStore
	revocations *revocation.InMemoryStore
	policies    *policy.InMemoryStore
	analytics   *analytics.InMemoryStore
	rules       *rules.InMemoryStore
	auditStore  *audit.InMemoryStore
	tokens      *token.Service
	clock       *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: testStart}

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	keyring, err := crypto.NewKeyring(map[uint8][]byte{1: key}, 1)
	require.NoError(t, err)

	signingKey := make([]byte, 32)
	for i := range signingKey {
		signingKey[i] = byte(i + 100)
	}
	tokens := token.New(signingKey, "passq", "passq",
		15*time.Minute, 7*24*time.Hour, token.WithClock(clock.Now))

	f := &fixture{
		users:       user.NewInMemory(),
		sessions:    session.New(),
		secrets:     secret.NewInMemory(),
		revocations: revocation.NewInMemory(),
		policies:    policy.NewInMemory(),
		analytics:   analytics.NewInMemory(),
		rules:       rules.NewInMemory(),
		auditStore:  audit.NewInMemoryStore(),
		tokens:      tokens,
		clock:       clock,
	}

	f.mfa = mfa.New(f.users, keyring, ratelimit.NewInMemory(), f.analytics,
		mfa.WithClock(clock.Now))

	ledger := audit.NewLedger(f.auditStore, []byte("audit-test-key"),
		audit.WithClock(clock.Now))

	f.service = New(
		f.users, f.sessions, f.secrets, f.revocations, f.policies,
		tokens, keyring, device.NewService(true),
		WithAnalytics(f.analytics),
		WithRules(f.rules),
		WithMFA(f.mfa),
		WithAuditPublisher(audit.NewPublisher(ledger)),
		WithClock(clock.Now),
	)
	return f
}

// register creates an account and returns its ID.
func (f *fixture) register(t *testing.T, email string) string {
	t.Helper()
	account, err := f.service.Register(context.Background(), email, testPassword)
	require.NoError(t, err)
	return account.ID
}

// login performs a password login with the default desktop user agent.
func (f *fixture) login(t *testing.T, email string) *LoginResult {
	t.Helper()
	return f.loginFrom(t, email, testUserAgent, "10.0.0.1")
}

func (f *fixture) loginFrom(t *testing.T, email, userAgent, ip string) *LoginResult {
	t.Helper()
	result, err := f.service.Login(context.Background(), LoginRequest{
		Credential: PasswordCredential{Email: email, Password: testPassword},
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
	require.NoError(t, err)
	return result
}

// activeSessions returns the user's sessions still in active state.
func (f *fixture) activeSessions(t *testing.T, userID string) []*models.Session {
	t.Helper()
	all, err := f.sessions.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	active := make([]*models.Session, 0, len(all))
	for _, sess := range all {
		if sess.IsActive() {
			active = append(active, sess)
		}
	}
	return active
}
