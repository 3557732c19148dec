package secret

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"passq/internal/vault/models"
)

// PostgresStore persists encrypted secrets in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed secret store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const secretColumns = `id, user_id, name, encrypted_data, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, secret *models.Secret) error {
	query := `
		INSERT INTO secrets (` + secretColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		secret.ID,
		secret.UserID,
		secret.Name,
		secret.EncryptedData,
		secret.CreatedAt,
		secret.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create secret: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, userID, secretID string) (*models.Secret, error) {
	query := `
		SELECT ` + secretColumns + `
		FROM secrets
		WHERE id = $1 AND user_id = $2
	`
	secret, err := scanSecret(s.db.QueryRowContext(ctx, query, secretID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find secret: %w", err)
	}
	return secret, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*models.Secret, error) {
	query := `
		SELECT ` + secretColumns + `
		FROM secrets
		WHERE user_id = $1
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	secrets := make([]*models.Secret, 0)
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		secrets = append(secrets, secret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secrets: %w", err)
	}
	return secrets, nil
}

func (s *PostgresStore) Update(ctx context.Context, secret *models.Secret) error {
	query := `
		UPDATE secrets
		SET name = $3, encrypted_data = $4, updated_at = $5
		WHERE id = $1 AND user_id = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		secret.ID,
		secret.UserID,
		secret.Name,
		secret.EncryptedData,
		secret.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update secret rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, secretID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets WHERE id = $1 AND user_id = $2`,
		secretID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete secret rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecret(row rowScanner) (*models.Secret, error) {
	var secret models.Secret
	err := row.Scan(
		&secret.ID,
		&secret.UserID,
		&secret.Name,
		&secret.EncryptedData,
		&secret.CreatedAt,
		&secret.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &secret, nil
}
