package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks security events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// riskWeight maps severity to its contribution to a session risk score.
func (s Severity) riskWeight() int {
	switch s {
	case SeverityCritical:
		return 40
	case SeverityHigh:
		return 25
	case SeverityMedium:
		return 15
	case SeverityLow:
		return 5
	default:
		return 0
	}
}

// SecurityEvent records a detected anomaly tied to a session.
type SecurityEvent struct {
	ID          string
	SessionID   string
	UserID      string
	EventType   string
	Severity    Severity
	Description string
	ActionTaken string
	IPAddress   string
	UserAgent   string
	Resolved    bool
	ResolvedAt  *time.Time
	Timestamp   time.Time
}

// NewSecurityEvent constructs an unresolved security event.
func NewSecurityEvent(sessionID, userID, eventType string, severity Severity, description string, now time.Time) *SecurityEvent {
	return &SecurityEvent{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserID:      userID,
		EventType:   eventType,
		Severity:    severity,
		Description: description,
		Timestamp:   now,
	}
}

// Resolve marks the event handled.
func (e *SecurityEvent) Resolve(at time.Time) {
	e.Resolved = true
	e.ResolvedAt = &at
}

// TokenEvent is an analytics record of a token lifecycle operation.
type TokenEvent struct {
	ID                string
	UserID            string
	SessionID         string
	EventType         string
	TokenType         string
	Success           bool
	ErrorCode         string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	RiskScore         int
	Timestamp         time.Time
}

// Risk scoring thresholds and factors.
const (
	riskUnknownDevice   = 20
	riskUnknownLocation = 10
	riskOldSession      = 10
	riskInactiveSession = 15

	oldSessionAge     = 7 * 24 * time.Hour
	inactiveThreshold = 24 * time.Hour
	staleSessionAge   = 30 * 24 * time.Hour

	maxRiskScore = 100
)

// RiskScore computes a 0-100 score for the session from its metadata and
// unresolved security events. Higher means riskier.
func (s *Session) RiskScore(events []*SecurityEvent, now time.Time) int {
	score := 0
	if s.DeviceFingerprint == "" {
		score += riskUnknownDevice
	}
	if s.LocationCountry == "" {
		score += riskUnknownLocation
	}
	for _, event := range events {
		score += event.Severity.riskWeight()
	}
	if now.Sub(s.CreatedAt) > oldSessionAge {
		score += riskOldSession
	}
	if now.Sub(s.LastActivity) > inactiveThreshold {
		score += riskInactiveSession
	}
	if score > maxRiskScore {
		score = maxRiskScore
	}
	return score
}

// RequiredActions derives follow-up actions from a risk score and any
// outstanding critical events. Returned deduplicated in priority order.
func (s *Session) RequiredActions(events []*SecurityEvent, riskScore int, now time.Time) []string {
	actions := make([]string, 0, 4)
	switch {
	case riskScore > 80:
		actions = append(actions, "require_mfa", "notify_user")
	case riskScore > 60:
		actions = append(actions, "require_mfa")
	case riskScore > 40:
		actions = append(actions, "monitor_closely")
	}
	for _, event := range events {
		if event.Severity == SeverityCritical && !event.Resolved {
			actions = append(actions, "immediate_review")
			break
		}
	}
	if now.Sub(s.CreatedAt) > staleSessionAge {
		actions = append(actions, "force_refresh")
	}
	return dedupe(actions)
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
