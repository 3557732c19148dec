// Package rules persists monitoring rules evaluated against session activity.
package rules

import (
	"context"
	"time"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// ErrNotFound is returned when a requested rule is not found in the store.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "monitoring rule not found")

// Store persists monitoring rules.
type Store interface {
	// Save inserts the rule or replaces an existing one with the same ID.
	Save(ctx context.Context, rule *models.MonitoringRule) error

	FindByID(ctx context.Context, id string) (*models.MonitoringRule, error)

	// ListEnabled returns all rules currently enabled for evaluation.
	ListEnabled(ctx context.Context) ([]*models.MonitoringRule, error)

	// RecordTrigger increments the rule's trigger count and stamps the
	// trigger time.
	RecordTrigger(ctx context.Context, id string, at time.Time) error
}
