package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"passq/internal/vault/models"
)

// PostgresStore persists policy records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LimitsForUser(ctx context.Context, userID string) (*models.SessionLimits, error) {
	query := `
		SELECT user_id, max_concurrent_sessions, max_sessions_per_device, session_timeout_seconds,
		       refresh_timeout_seconds, enforce_single_session, allow_concurrent_mobile, created_at, updated_at
		FROM session_limits
		WHERE user_id = $1
	`
	var limits models.SessionLimits
	var sessionTimeout, refreshTimeout int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&limits.UserID,
		&limits.MaxConcurrentSessions,
		&limits.MaxSessionsPerDevice,
		&sessionTimeout,
		&refreshTimeout,
		&limits.EnforceSingleSession,
		&limits.AllowConcurrentMobile,
		&limits.CreatedAt,
		&limits.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session limits: %w", err)
	}
	limits.SessionTimeout = secondsToDuration(sessionTimeout)
	limits.RefreshTimeout = secondsToDuration(refreshTimeout)
	return &limits, nil
}

func (s *PostgresStore) SaveLimits(ctx context.Context, limits *models.SessionLimits) error {
	query := `
		INSERT INTO session_limits (user_id, max_concurrent_sessions, max_sessions_per_device, session_timeout_seconds,
		                            refresh_timeout_seconds, enforce_single_session, allow_concurrent_mobile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			max_concurrent_sessions = EXCLUDED.max_concurrent_sessions,
			max_sessions_per_device = EXCLUDED.max_sessions_per_device,
			session_timeout_seconds = EXCLUDED.session_timeout_seconds,
			refresh_timeout_seconds = EXCLUDED.refresh_timeout_seconds,
			enforce_single_session = EXCLUDED.enforce_single_session,
			allow_concurrent_mobile = EXCLUDED.allow_concurrent_mobile,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		limits.UserID,
		limits.MaxConcurrentSessions,
		limits.MaxSessionsPerDevice,
		durationToSeconds(limits.SessionTimeout),
		durationToSeconds(limits.RefreshTimeout),
		limits.EnforceSingleSession,
		limits.AllowConcurrentMobile,
		limits.CreatedAt,
		limits.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session limits: %w", err)
	}
	return nil
}

const deviceColumns = `id, user_id, fingerprint, device_name, device_type, trust_level, trust_score, ip_addresses, session_count, first_seen, last_seen, updated_at`

func (s *PostgresStore) FindDevice(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM trusted_devices
		WHERE user_id = $1 AND fingerprint = $2
	`
	device, err := scanDevice(s.db.QueryRowContext(ctx, query, userID, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find device: %w", err)
	}
	return device, nil
}

func (s *PostgresStore) SaveDevice(ctx context.Context, device *models.TrustedDevice) error {
	query := `
		INSERT INTO trusted_devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, fingerprint) DO UPDATE SET
			device_name = EXCLUDED.device_name,
			device_type = EXCLUDED.device_type,
			trust_level = EXCLUDED.trust_level,
			trust_score = EXCLUDED.trust_score,
			ip_addresses = EXCLUDED.ip_addresses,
			session_count = EXCLUDED.session_count,
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.UserID,
		device.Fingerprint,
		device.DeviceName,
		device.DeviceType,
		string(device.TrustLevel),
		device.TrustScore,
		joinIPs(device.IPAddresses),
		device.SessionCount,
		device.FirstSeen,
		device.LastSeen,
		device.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDevices(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM trusted_devices
		WHERE user_id = $1
		ORDER BY last_seen DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]*models.TrustedDevice, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.TrustedDevice, error) {
	var device models.TrustedDevice
	var trustLevel, ips string
	err := row.Scan(
		&device.ID,
		&device.UserID,
		&device.Fingerprint,
		&device.DeviceName,
		&device.DeviceType,
		&trustLevel,
		&device.TrustScore,
		&ips,
		&device.SessionCount,
		&device.FirstSeen,
		&device.LastSeen,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	device.TrustLevel = models.TrustLevel(trustLevel)
	device.IPAddresses = splitIPs(ips)
	return &device, nil
}

// IP history is stored as a comma-joined text column. IP literals never
// contain commas, so no escaping is needed.
func joinIPs(ips []string) string {
	return strings.Join(ips, ",")
}

func splitIPs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

func durationToSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
