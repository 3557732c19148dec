package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"passq/internal/vault/models"
)

// PostgresStore persists monitoring rules in PostgreSQL so operator-deployed
// detection logic survives restarts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed rule store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ruleColumns = `id, name, rule_type, enabled, severity, conditions, actions, threshold, time_window_seconds, last_triggered, trigger_count, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, rule *models.MonitoringRule) error {
	query := `
		INSERT INTO monitoring_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			rule_type = EXCLUDED.rule_type,
			enabled = EXCLUDED.enabled,
			severity = EXCLUDED.severity,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			threshold = EXCLUDED.threshold,
			time_window_seconds = EXCLUDED.time_window_seconds,
			updated_at = EXCLUDED.updated_at
	`
	var lastTriggered sql.NullTime
	if rule.LastTriggered != nil {
		lastTriggered = sql.NullTime{Time: *rule.LastTriggered, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.RuleType,
		rule.Enabled,
		string(rule.Severity),
		string(rule.Conditions),
		joinActions(rule.Actions),
		rule.Threshold,
		int64(rule.TimeWindow/time.Second),
		lastTriggered,
		rule.TriggerCount,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save monitoring rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.MonitoringRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM monitoring_rules
		WHERE id = $1
	`
	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find monitoring rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) ListEnabled(ctx context.Context) ([]*models.MonitoringRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM monitoring_rules
		WHERE enabled
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list monitoring rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.MonitoringRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitoring rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitoring rules: %w", err)
	}
	return rules, nil
}

func (s *PostgresStore) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE monitoring_rules
		SET trigger_count = trigger_count + 1, last_triggered = $2, updated_at = $2
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("record rule trigger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record rule trigger: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRule(row interface{ Scan(dest ...any) error }) (*models.MonitoringRule, error) {
	var rule models.MonitoringRule
	var severity, conditions, actions string
	var windowSeconds int64
	var lastTriggered sql.NullTime
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.RuleType,
		&rule.Enabled,
		&severity,
		&conditions,
		&actions,
		&rule.Threshold,
		&windowSeconds,
		&lastTriggered,
		&rule.TriggerCount,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Severity = models.Severity(severity)
	if conditions != "" {
		rule.Conditions = []byte(conditions)
	}
	rule.Actions = splitActions(actions)
	rule.TimeWindow = time.Duration(windowSeconds) * time.Second
	if lastTriggered.Valid {
		triggered := lastTriggered.Time
		rule.LastTriggered = &triggered
	}
	return &rule, nil
}

// Action names never contain commas, so the list is stored comma-joined.
func joinActions(actions []string) string {
	return strings.Join(actions, ",")
}

func splitActions(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
