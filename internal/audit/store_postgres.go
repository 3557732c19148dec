package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists ledger entries in PostgreSQL.
// This store is pure I/O; chaining and verification belong to the Ledger.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO audit_entries (sequence, event_type, user_id, resource_id, ip_address, user_agent, details, timestamp, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.Sequence,
		string(entry.EventType),
		entry.UserID,
		entry.ResourceID,
		entry.IPAddress,
		entry.UserAgent,
		entry.Details,
		entry.Timestamp,
		entry.PrevHash,
		entry.Hash,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Last(ctx context.Context) (*Entry, error) {
	query := `
		SELECT sequence, event_type, user_id, resource_id, ip_address, user_agent, details, timestamp, prev_hash, hash
		FROM audit_entries
		ORDER BY sequence DESC
		LIMIT 1
	`
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load last audit entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) Range(ctx context.Context, from, to uint64) ([]*Entry, error) {
	query := `
		SELECT sequence, event_type, user_id, resource_id, ip_address, user_agent, details, timestamp, prev_hash, hash
		FROM audit_entries
		WHERE sequence >= $1 AND sequence <= $2
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("range audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	query := `
		SELECT sequence, event_type, user_id, resource_id, ip_address, user_agent, details, timestamp, prev_hash, hash
		FROM audit_entries
		WHERE user_id = $1
		ORDER BY sequence DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries by user: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var eventType string
	err := row.Scan(
		&entry.Sequence,
		&eventType,
		&entry.UserID,
		&entry.ResourceID,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.Details,
		&entry.Timestamp,
		&entry.PrevHash,
		&entry.Hash,
	)
	if err != nil {
		return nil, err
	}
	entry.EventType = EventType(eventType)
	return &entry, nil
}
