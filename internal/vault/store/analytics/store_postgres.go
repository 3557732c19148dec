package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"passq/internal/vault/models"
)

// PostgresStore persists analytics records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed analytics store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tokenEventColumns = `id, user_id, session_id, event_type, token_type, success, error_code, ip_address, user_agent, device_fingerprint, risk_score, timestamp`

const securityEventColumns = `id, session_id, user_id, event_type, severity, description, action_taken, ip_address, user_agent, resolved, resolved_at, timestamp`

func (s *PostgresStore) RecordTokenEvent(ctx context.Context, event *models.TokenEvent) error {
	query := `
		INSERT INTO token_events (` + tokenEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.SessionID,
		event.EventType,
		event.TokenType,
		event.Success,
		event.ErrorCode,
		event.IPAddress,
		event.UserAgent,
		event.DeviceFingerprint,
		event.RiskScore,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record token event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTokenEvents(ctx context.Context, userID string, limit int) ([]*models.TokenEvent, error) {
	query := `
		SELECT ` + tokenEventColumns + `
		FROM token_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list token events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.TokenEvent, 0)
	for rows.Next() {
		event, err := scanTokenEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) CountTokenEventsSince(ctx context.Context, userID, eventType string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM token_events
		WHERE user_id = $1 AND event_type = $2 AND timestamp >= $3
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, eventType, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count token events: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) RecordSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (` + securityEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.UserID,
		event.EventType,
		string(event.Severity),
		event.Description,
		event.ActionTaken,
		event.IPAddress,
		event.UserAgent,
		event.Resolved,
		event.ResolvedAt,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("record security event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSecurityEventsBySession(ctx context.Context, sessionID string) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`
	return s.querySecurityEvents(ctx, query, sessionID)
}

func (s *PostgresStore) ListUnresolvedSecurityEvents(ctx context.Context, userID string) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE user_id = $1 AND resolved = FALSE
		ORDER BY timestamp ASC
	`
	return s.querySecurityEvents(ctx, query, userID)
}

func (s *PostgresStore) querySecurityEvents(ctx context.Context, query string, args ...any) ([]*models.SecurityEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		event, err := scanSecurityEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) ResolveSecurityEvent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE security_events
		SET resolved = TRUE, resolved_at = $2
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("resolve security event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve security event rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	deleted := 0

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM token_events WHERE timestamp < $1`,
		now.Add(-TokenEventRetention),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired token events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired token events rows affected: %w", err)
	}
	deleted += int(affected)

	result, err = s.db.ExecContext(ctx,
		`DELETE FROM security_events WHERE timestamp < $1`,
		now.Add(-SecurityEventRetention),
	)
	if err != nil {
		return deleted, fmt.Errorf("delete expired security events: %w", err)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return deleted, fmt.Errorf("delete expired security events rows affected: %w", err)
	}
	deleted += int(affected)

	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTokenEvent(row rowScanner) (*models.TokenEvent, error) {
	var event models.TokenEvent
	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.SessionID,
		&event.EventType,
		&event.TokenType,
		&event.Success,
		&event.ErrorCode,
		&event.IPAddress,
		&event.UserAgent,
		&event.DeviceFingerprint,
		&event.RiskScore,
		&event.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func scanSecurityEvent(row rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent
	var severity string
	var resolvedAt sql.NullTime
	err := row.Scan(
		&event.ID,
		&event.SessionID,
		&event.UserID,
		&event.EventType,
		&severity,
		&event.Description,
		&event.ActionTaken,
		&event.IPAddress,
		&event.UserAgent,
		&event.Resolved,
		&resolvedAt,
		&event.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	event.Severity = models.Severity(severity)
	if resolvedAt.Valid {
		event.ResolvedAt = &resolvedAt.Time
	}
	return &event, nil
}
