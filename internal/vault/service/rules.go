package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"passq/internal/audit"
	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
)

// Condition is one node of a monitoring rule predicate. A leaf compares an
// event field against a value; All and Any group child conditions. Rules
// are data, so operators can ship new detection logic without a deploy.
type Condition struct {
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
	Value string `json:"value,omitempty"`

	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
}

// matches evaluates the condition tree against a token event. A node with
// several parts (leaf plus groups) requires all of them; an empty node
// matches everything.
func (c Condition) matches(event *models.TokenEvent) bool {
	for _, child := range c.All {
		if !child.matches(event) {
			return false
		}
	}
	if len(c.Any) > 0 {
		matched := false
		for _, child := range c.Any {
			if child.matches(event) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if c.Field == "" {
		return true
	}
	return c.matchLeaf(event)
}

func (c Condition) matchLeaf(event *models.TokenEvent) bool {
	if c.Field == "risk_score" {
		threshold, err := strconv.Atoi(c.Value)
		if err != nil {
			return false
		}
		switch c.Op {
		case "gt":
			return event.RiskScore > threshold
		case "lt":
			return event.RiskScore < threshold
		case "eq":
			return event.RiskScore == threshold
		default:
			return false
		}
	}

	actual := eventField(event, c.Field)
	switch c.Op {
	case "eq":
		return actual == c.Value
	case "ne":
		return actual != c.Value
	case "contains":
		return strings.Contains(actual, c.Value)
	case "prefix":
		return strings.HasPrefix(actual, c.Value)
	default:
		return false
	}
}

func eventField(event *models.TokenEvent, field string) string {
	switch field {
	case "event_type":
		return event.EventType
	case "token_type":
		return event.TokenType
	case "success":
		return strconv.FormatBool(event.Success)
	case "error_code":
		return event.ErrorCode
	case "ip_address":
		return event.IPAddress
	case "user_agent":
		return event.UserAgent
	case "device_fingerprint":
		return event.DeviceFingerprint
	default:
		return ""
	}
}

// evaluateRules runs every enabled monitoring rule against a login or
// refresh event. Rule failures never fail the request; detection is best
// effort on top of an already-committed operation.
func (s *Service) evaluateRules(ctx context.Context, sess *models.Session, event *models.TokenEvent) {
	if s.rules == nil {
		return
	}
	enabled, err := s.rules.ListEnabled(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "could not load monitoring rules", "error", err)
		return
	}

	for _, rule := range enabled {
		var cond Condition
		if len(rule.Conditions) > 0 {
			if err := json.Unmarshal(rule.Conditions, &cond); err != nil {
				s.logger.ErrorContext(ctx, "malformed rule conditions skipped",
					"rule", rule.Name, "error", err)
				continue
			}
		}
		if !cond.matches(event) {
			continue
		}
		if !s.overThreshold(ctx, rule, event) {
			continue
		}
		s.triggerRule(ctx, rule, sess, event)
	}
}

// overThreshold applies the rule's occurrence count within its window.
// Rules without a threshold fire on every match.
func (s *Service) overThreshold(ctx context.Context, rule *models.MonitoringRule, event *models.TokenEvent) bool {
	if rule.Threshold <= 1 || rule.TimeWindow <= 0 {
		return true
	}
	if s.analytics == nil {
		return false
	}
	since := s.now().Add(-rule.TimeWindow)
	count, err := s.analytics.CountTokenEventsSince(ctx, event.UserID, event.EventType, since)
	if err != nil {
		s.logger.ErrorContext(ctx, "could not count events for rule",
			"rule", rule.Name, "error", err)
		return false
	}
	return count >= rule.Threshold
}

func (s *Service) triggerRule(ctx context.Context, rule *models.MonitoringRule, sess *models.Session, event *models.TokenEvent) {
	if err := s.rules.RecordTrigger(ctx, rule.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "could not record rule trigger",
			"rule", rule.Name, "error", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementRuleTriggers(rule.Name)
	}

	matched := models.NewSecurityEvent(sess.ID, event.UserID, "rule_"+rule.RuleType,
		rule.Severity, "monitoring rule matched: "+rule.Name, s.now())
	matched.ActionTaken = strings.Join(rule.Actions, ",")
	matched.IPAddress = event.IPAddress
	matched.UserAgent = event.UserAgent
	s.raiseSecurityEvent(ctx, matched)

	for _, action := range rule.Actions {
		switch action {
		case "terminate":
			if _, err := s.terminateSession(ctx, sess.ID, "rule_"+rule.Name); err != nil {
				s.logger.ErrorContext(ctx, "rule termination failed",
					"rule", rule.Name, "session_id", sess.ID, "error", err)
			}
		case "require_mfa":
			stepUp := models.NewSecurityEvent(sess.ID, event.UserID, "step_up_required",
				rule.Severity, "rule requires mfa re-verification: "+rule.Name, s.now())
			s.raiseSecurityEvent(ctx, stepUp)
		case "notify":
			s.logger.WarnContext(ctx, "monitoring rule notification",
				"rule", rule.Name, "user_id", event.UserID, "session_id", sess.ID)
		case "log":
			s.logAudit(ctx, audit.Record{
				EventType:  audit.EventSecurityEventRaised,
				UserID:     event.UserID,
				ResourceID: sess.ID,
				Details:    "rule:" + rule.Name,
			})
		default:
			s.logger.WarnContext(ctx, "unknown rule action ignored",
				"rule", rule.Name, "action", action)
		}
	}
}

// SaveMonitoringRule installs a new rule or replaces an existing one. The
// condition tree is parsed up front so a malformed rule is rejected here
// instead of being skipped at evaluation time.
func (s *Service) SaveMonitoringRule(ctx context.Context, rule *models.MonitoringRule) error {
	if s.rules == nil {
		return dErrors.New(dErrors.CodeInternal, "monitoring rules are not enabled")
	}
	if rule.Name == "" || rule.RuleType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "rule name and type are required")
	}
	if len(rule.Conditions) > 0 {
		var cond Condition
		if err := json.Unmarshal(rule.Conditions, &cond); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed rule conditions")
		}
	}
	switch rule.Severity {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	case "":
		rule.Severity = models.SeverityMedium
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown severity")
	}

	now := s.now()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	if err := s.rules.Save(ctx, rule); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not save rule")
	}
	s.logger.InfoContext(ctx, "monitoring rule saved",
		"rule", rule.Name, "rule_id", rule.ID, "enabled", rule.Enabled)
	return nil
}

// ListMonitoringRules returns the rules currently enabled for evaluation.
func (s *Service) ListMonitoringRules(ctx context.Context) ([]*models.MonitoringRule, error) {
	if s.rules == nil {
		return nil, nil
	}
	return s.rules.ListEnabled(ctx)
}

// SetRuleEnabled flips a rule on or off without touching its definition.
func (s *Service) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	if s.rules == nil {
		return dErrors.New(dErrors.CodeInternal, "monitoring rules are not enabled")
	}
	rule, err := s.rules.FindByID(ctx, ruleID)
	if err != nil {
		return err
	}
	rule.Enabled = enabled
	rule.UpdatedAt = s.now()
	return s.rules.Save(ctx, rule)
}
