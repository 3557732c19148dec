package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"passq/internal/vault/models"
)

// PostgresStore persists users and backup codes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, password_hash, totp_secret, mfa_enabled, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.TOTPSecret,
		user.MFAEnabled,
		string(user.Status),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.findOne(ctx, query, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.findOne(ctx, query, strings.ToLower(email))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	var status string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.TOTPSecret,
		&user.MFAEnabled,
		&status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user.Status = models.UserStatus(status)
	return &user, nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, totp_secret = $4, mfa_enabled = $5, status = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.TOTPSecret,
		user.MFAEnabled,
		string(user.Status),
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReplaceBackupCodes(ctx context.Context, userID string, codes []*models.BackupCode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace backup codes: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete old backup codes: %w", err)
	}
	for _, code := range codes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (id, user_id, code_hash, used, used_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			code.ID, code.UserID, code.CodeHash, code.Used, code.UsedAt, code.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert backup code: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace backup codes: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUnusedBackupCodes(ctx context.Context, userID string) ([]*models.BackupCode, error) {
	query := `
		SELECT id, user_id, code_hash, used, used_at, created_at
		FROM backup_codes
		WHERE user_id = $1 AND used = FALSE
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}
	defer rows.Close()

	codes := make([]*models.BackupCode, 0)
	for rows.Next() {
		var code models.BackupCode
		var usedAt sql.NullTime
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.Used, &usedAt, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		if usedAt.Valid {
			code.UsedAt = &usedAt.Time
		}
		codes = append(codes, &code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup codes: %w", err)
	}
	return codes, nil
}

func (s *PostgresStore) MarkBackupCodeUsed(ctx context.Context, codeID string, at time.Time) error {
	// Conditional update makes consumption single-use under concurrency.
	query := `
		UPDATE backup_codes
		SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE
	`
	result, err := s.db.ExecContext(ctx, query, codeID, at)
	if err != nil {
		return fmt.Errorf("mark backup code used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark backup code rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var used bool
	err = s.db.QueryRowContext(ctx, `SELECT used FROM backup_codes WHERE id = $1`, codeID).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("check backup code: %w", err)
	}
	if used {
		return ErrCodeUsed
	}
	return ErrNotFound
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
