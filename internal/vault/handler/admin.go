package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
	httpErrors "passq/pkg/http-errors"
)

type ruleView struct {
	RuleID        string          `json:"rule_id"`
	Name          string          `json:"name"`
	RuleType      string          `json:"rule_type"`
	Enabled       bool            `json:"enabled"`
	Severity      string          `json:"severity"`
	Conditions    json.RawMessage `json:"conditions,omitempty"`
	Actions       []string        `json:"actions"`
	Threshold     int             `json:"threshold,omitempty"`
	TimeWindowSec int64           `json:"time_window_seconds,omitempty"`
	TriggerCount  int             `json:"trigger_count"`
	LastTriggered *time.Time      `json:"last_triggered,omitempty"`
}

func toRuleView(rule *models.MonitoringRule) ruleView {
	return ruleView{
		RuleID:        rule.ID,
		Name:          rule.Name,
		RuleType:      rule.RuleType,
		Enabled:       rule.Enabled,
		Severity:      string(rule.Severity),
		Conditions:    json.RawMessage(rule.Conditions),
		Actions:       rule.Actions,
		Threshold:     rule.Threshold,
		TimeWindowSec: int64(rule.TimeWindow / time.Second),
		TriggerCount:  rule.TriggerCount,
		LastTriggered: rule.LastTriggered,
	}
}

func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.vault.ListMonitoringRules(r.Context())
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	views := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, toRuleView(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": views})
}

type saveRuleRequest struct {
	RuleID        string          `json:"rule_id"`
	Name          string          `json:"name"`
	RuleType      string          `json:"rule_type"`
	Enabled       bool            `json:"enabled"`
	Severity      string          `json:"severity"`
	Conditions    json.RawMessage `json:"conditions"`
	Actions       []string        `json:"actions"`
	Threshold     int             `json:"threshold"`
	TimeWindowSec int64           `json:"time_window_seconds"`
}

func (h *Handler) HandleSaveRule(w http.ResponseWriter, r *http.Request) {
	var req saveRuleRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule := &models.MonitoringRule{
		ID:         req.RuleID,
		Name:       req.Name,
		RuleType:   req.RuleType,
		Enabled:    req.Enabled,
		Severity:   models.Severity(req.Severity),
		Conditions: []byte(req.Conditions),
		Actions:    req.Actions,
		Threshold:  req.Threshold,
		TimeWindow: time.Duration(req.TimeWindowSec) * time.Second,
	}
	if err := h.vault.SaveMonitoringRule(r.Context(), rule); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleView(rule))
}

type setRuleEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) HandleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "rule_id")
	if ruleID == "" {
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "rule id is required"))
		return
	}
	var req setRuleEnabledRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.vault.SetRuleEnabled(r.Context(), ruleID, req.Enabled); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
