package service

import (
	"context"

	"github.com/google/uuid"

	"passq/internal/audit"
	"passq/internal/platform/privacy"
	"passq/internal/vault/models"
)

// logAudit appends a ledger entry and mirrors it to the structured log.
// Ledger failures are logged, never propagated; a degraded audit trail must
// not block the security operation itself. Ledger entries are retained
// indefinitely, so the host-identifying part of the IP is dropped first.
func (s *Service) logAudit(ctx context.Context, record audit.Record) {
	if record.IPAddress != "" {
		record.IPAddress = privacy.AnonymizeIP(record.IPAddress)
	}
	s.logger.InfoContext(ctx, string(record.EventType),
		"user_id", record.UserID,
		"resource_id", record.ResourceID,
		"details", record.Details,
		"log_type", "audit",
	)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed", "event", record.EventType, "error", err)
	}
}

// recordTokenEvent stores an analytics row for a token lifecycle decision.
func (s *Service) recordTokenEvent(ctx context.Context, event *models.TokenEvent) {
	if s.analytics == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.analytics.RecordTokenEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "token event record failed", "event", event.EventType, "error", err)
	}
}

// raiseSecurityEvent stores a security event and counts it.
func (s *Service) raiseSecurityEvent(ctx context.Context, event *models.SecurityEvent) {
	if s.metrics != nil {
		s.metrics.IncrementSecurityEvents(event.EventType, string(event.Severity))
	}
	s.logger.WarnContext(ctx, "security event",
		"event_type", event.EventType,
		"severity", event.Severity,
		"user_id", event.UserID,
		"session_id", event.SessionID,
		"description", event.Description,
	)
	if s.analytics == nil {
		return
	}
	if err := s.analytics.RecordSecurityEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "security event record failed", "event", event.EventType, "error", err)
	}
	s.logAudit(ctx, audit.Record{
		EventType:  audit.EventSecurityEventRaised,
		UserID:     event.UserID,
		ResourceID: event.SessionID,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
		Details:    event.EventType,
	})
}

func (s *Service) incrementAuthFailure() {
	if s.metrics != nil {
		s.metrics.IncrementAuthFailures()
	}
}

func (s *Service) incrementTokensIssued() {
	if s.metrics != nil {
		s.metrics.IncrementTokensIssued()
	}
}

func (s *Service) incrementTokenRefreshes() {
	if s.metrics != nil {
		s.metrics.IncrementTokenRefreshes()
	}
}

func (s *Service) incrementTokensRevoked(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementTokensRevoked(reason)
	}
}

func (s *Service) incrementValidationFailure(kind string) {
	if s.metrics != nil {
		s.metrics.IncrementValidationFailures(kind)
	}
}

func (s *Service) incrementReuseDetections() {
	if s.metrics != nil {
		s.metrics.IncrementReuseDetections()
	}
}

func (s *Service) incrementActiveSessions(count int) {
	if s.metrics != nil {
		s.metrics.IncrementActiveSessions(count)
	}
}

func (s *Service) decrementActiveSessions(count int) {
	if s.metrics != nil {
		s.metrics.DecrementActiveSessions(count)
	}
}

func (s *Service) incrementSessionsTerminated(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementSessionsTerminated(reason)
	}
}
