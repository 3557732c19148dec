package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"passq/internal/vault/models"
)

// PostgresStore persists sessions in PostgreSQL.
// Rotation runs inside a transaction with a row lock so the single-use
// refresh guarantee holds across instances.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `
	id, user_id, status, access_token_jti, refresh_token_jti,
	device_fingerprint, device_name, device_type, ip_address, user_agent,
	location_country, created_at, expires_at, last_activity, revoked_at
`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		string(session.Status),
		session.AccessTokenJTI,
		session.RefreshTokenJTI,
		session.DeviceFingerprint,
		session.DeviceName,
		session.DeviceType,
		session.IPAddress,
		session.UserAgent,
		session.LocationCountry,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastActivity,
		session.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by user: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	query := `
		UPDATE sessions SET
			status = $2, access_token_jti = $3, refresh_token_jti = $4,
			last_activity = $5, revoked_at = $6, expires_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		session.ID,
		string(session.Status),
		session.AccessTokenJTI,
		session.RefreshTokenJTI,
		session.LastActivity,
		session.RevokedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Rotate locks the session row, validates lifecycle state and the presented
// jti, then installs the new token pair. The row lock makes the consume
// atomic: concurrent presentations of the same jti serialize, and all but
// the first observe the already-rotated jti and fail with ErrRefreshReused.
func (s *PostgresStore) Rotate(ctx context.Context, sessionID, presentedJTI, newAccessJTI, newRefreshJTI string, now time.Time) (*models.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	session, err := scanSession(tx.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock session for rotation: %w", err)
	}

	if session.IsRevoked() {
		return nil, ErrSessionRevoked
	}
	if session.IsExpired(now) {
		return nil, ErrSessionExpired
	}
	if session.RefreshTokenJTI != presentedJTI {
		return nil, ErrRefreshReused
	}

	session.Rotate(newAccessJTI, newRefreshJTI, now)
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET access_token_jti = $2, refresh_token_jti = $3, last_activity = $4
		WHERE id = $1
	`, session.ID, newAccessJTI, newRefreshJTI, session.LastActivity)
	if err != nil {
		return nil, fmt.Errorf("install rotated tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) RevokeIfActive(ctx context.Context, sessionID string, now time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions SET status = $2, revoked_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + sessionColumns
	session, err := scanSession(s.db.QueryRowContext(ctx, query,
		sessionID, string(models.SessionStatusRevoked), now, string(models.SessionStatusActive)))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revoke session: %w", err)
	}

	// Distinguish "already revoked" from "does not exist".
	if _, findErr := s.FindByID(ctx, sessionID); findErr != nil {
		return nil, findErr
	}
	return nil, ErrSessionRevoked
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	query := `
		UPDATE sessions SET status = $2, revoked_at = $3
		WHERE user_id = $1 AND status = $4
		RETURNING ` + sessionColumns
	rows, err := s.db.QueryContext(ctx, query,
		userID, string(models.SessionStatusRevoked), now, string(models.SessionStatusActive))
	if err != nil {
		return nil, fmt.Errorf("revoke sessions for user: %w", err)
	}
	defer rows.Close()

	revoked := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revoked session: %w", err)
		}
		revoked = append(revoked, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked sessions: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = $2 WHERE id = $1 AND last_activity < $2`,
		sessionID, at)
	if err != nil {
		return fmt.Errorf("touch session activity: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		// Either missing or already newer; only the former is an error.
		if _, findErr := s.FindByID(ctx, sessionID); findErr != nil {
			return findErr
		}
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time, idleCutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < $1 OR last_activity < $2`,
		now, idleCutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var status string
	var revokedAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&status,
		&session.AccessTokenJTI,
		&session.RefreshTokenJTI,
		&session.DeviceFingerprint,
		&session.DeviceName,
		&session.DeviceType,
		&session.IPAddress,
		&session.UserAgent,
		&session.LocationCountry,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastActivity,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	if revokedAt.Valid {
		session.RevokedAt = &revokedAt.Time
	}
	return &session, nil
}

var _ Store = (*PostgresStore)(nil)
