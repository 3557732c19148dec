package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dErrors "passq/pkg/domain-errors"
)

// Server captures everything the vault core needs at startup. Secrets are
// validated eagerly: a missing or weak key fails startup rather than letting
// the process run insecurely.
type Server struct {
	Addr string

	// JWTSigningKey signs access and refresh tokens (HS256).
	JWTSigningKey string
	Issuer        string
	Audience      string

	// EncryptionKeys maps key version -> 32-byte AES-256-GCM key. New writes
	// always use CurrentKeyVersion; older versions stay decrypt-only.
	EncryptionKeys    map[uint8][]byte
	CurrentKeyVersion uint8

	// AuditKey keys the HMAC hash chain of the audit ledger.
	AuditKey []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Default session limits, applied lazily when a user has no explicit row.
	MaxConcurrentSessions int
	MaxSessionsPerDevice  int

	CleanupInterval time.Duration

	DatabaseURL string
	RedisURL    string

	// AdminToken guards the monitoring rule admin endpoints. Empty leaves
	// the admin surface unmounted.
	AdminToken string
}

const (
	defaultAddr            = ":8080"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultCleanupInterval = 5 * time.Minute

	defaultMaxConcurrentSessions = 5
	defaultMaxSessionsPerDevice  = 3

	minKeyBytes = 32
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:                  envOr("PASSQ_ADDR", defaultAddr),
		JWTSigningKey:         os.Getenv("PASSQ_JWT_SECRET"),
		Issuer:                envOr("PASSQ_JWT_ISSUER", "passq-auth"),
		Audience:              envOr("PASSQ_JWT_AUDIENCE", "passq-api"),
		AccessTokenTTL:        durationOr("PASSQ_ACCESS_TOKEN_TTL", defaultAccessTokenTTL),
		RefreshTokenTTL:       durationOr("PASSQ_REFRESH_TOKEN_TTL", defaultRefreshTokenTTL),
		MaxConcurrentSessions: intOr("PASSQ_MAX_CONCURRENT_SESSIONS", defaultMaxConcurrentSessions),
		MaxSessionsPerDevice:  intOr("PASSQ_MAX_SESSIONS_PER_DEVICE", defaultMaxSessionsPerDevice),
		CleanupInterval:       durationOr("PASSQ_CLEANUP_INTERVAL", defaultCleanupInterval),
		DatabaseURL:           os.Getenv("PASSQ_DATABASE_URL"),
		RedisURL:              os.Getenv("PASSQ_REDIS_URL"),
		AdminToken:            os.Getenv("PASSQ_ADMIN_TOKEN"),
	}

	keys, current, err := encryptionKeysFromEnv()
	if err != nil {
		return Server{}, err
	}
	cfg.EncryptionKeys = keys
	cfg.CurrentKeyVersion = current

	if audit := os.Getenv("PASSQ_AUDIT_SECRET"); audit != "" {
		cfg.AuditKey = []byte(audit)
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would run the vault insecurely.
func (c Server) Validate() error {
	if len(c.JWTSigningKey) < minKeyBytes {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("PASSQ_JWT_SECRET must be at least %d bytes", minKeyBytes))
	}
	if len(c.EncryptionKeys) == 0 {
		return dErrors.New(dErrors.CodeValidation, "PASSQ_ENCRYPTION_KEY must be set")
	}
	for version, key := range c.EncryptionKeys {
		if len(key) != minKeyBytes {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("encryption key v%d must be exactly %d bytes for AES-256-GCM", version, minKeyBytes))
		}
	}
	if _, ok := c.EncryptionKeys[c.CurrentKeyVersion]; !ok {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("current key version %d has no key material", c.CurrentKeyVersion))
	}
	if len(c.AuditKey) < minKeyBytes {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("PASSQ_AUDIT_SECRET must be at least %d bytes", minKeyBytes))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return dErrors.New(dErrors.CodeValidation, "token TTLs must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return dErrors.New(dErrors.CodeValidation, "refresh token TTL must exceed access token TTL")
	}
	if c.MaxConcurrentSessions < 1 || c.MaxSessionsPerDevice < 1 {
		return dErrors.New(dErrors.CodeValidation, "session limits must be at least 1")
	}
	return nil
}

// encryptionKeysFromEnv reads PASSQ_ENCRYPTION_KEY (current version) plus any
// PASSQ_ENCRYPTION_KEY_V<n> retired versions kept for decryption. Values are
// hex-encoded 32-byte keys; a raw 32-byte string is accepted for the primary
// key to stay compatible with older deployments.
func encryptionKeysFromEnv() (map[uint8][]byte, uint8, error) {
	keys := make(map[uint8][]byte)

	current := uint8(intOr("PASSQ_ENCRYPTION_KEY_VERSION", 1))
	primary := os.Getenv("PASSQ_ENCRYPTION_KEY")
	if primary != "" {
		key, err := decodeKey(primary)
		if err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeValidation, "PASSQ_ENCRYPTION_KEY is not a valid key")
		}
		keys[current] = key
	}

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "PASSQ_ENCRYPTION_KEY_V") {
			continue
		}
		version, err := strconv.Atoi(strings.TrimPrefix(name, "PASSQ_ENCRYPTION_KEY_V"))
		if err != nil || version < 1 || version > 255 {
			continue
		}
		key, err := decodeKey(value)
		if err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeValidation,
				fmt.Sprintf("%s is not a valid key", name))
		}
		keys[uint8(version)] = key
	}

	return keys, current, nil
}

func decodeKey(value string) ([]byte, error) {
	if len(value) == minKeyBytes {
		return []byte(value), nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func durationOr(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intOr(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
