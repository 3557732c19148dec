package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"passq/internal/platform/middleware"
	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
	httpErrors "passq/pkg/http-errors"
)

type sessionView struct {
	SessionID       string    `json:"session_id"`
	Current         bool      `json:"current"`
	DeviceName      string    `json:"device_name"`
	DeviceType      string    `json:"device_type"`
	IPAddress       string    `json:"ip_address"`
	LocationCountry string    `json:"location_country,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
	RiskScore       int       `json:"risk_score"`
	RequiredActions []string  `json:"required_actions,omitempty"`
}

func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	currentSessionID := middleware.GetSessionID(ctx)

	infos, err := h.vault.ListSessions(ctx, userID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}

	views := make([]sessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, sessionView{
			SessionID:       info.Session.ID,
			Current:         info.Session.ID == currentSessionID,
			DeviceName:      info.Session.DeviceName,
			DeviceType:      info.Session.DeviceType,
			IPAddress:       info.Session.IPAddress,
			LocationCountry: info.Session.LocationCountry,
			CreatedAt:       info.Session.CreatedAt,
			LastActivity:    info.Session.LastActivity,
			RiskScore:       info.RiskScore,
			RequiredActions: info.RequiredActions,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *Handler) HandleTerminateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	sessionID := chi.URLParam(r, "session_id")

	if err := h.vault.TerminateSession(ctx, userID, sessionID); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	stats, err := h.vault.UserStats(ctx, userID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions":       stats.ActiveSessions,
		"revoked_sessions":      stats.RevokedSessions,
		"token_events_last_24h": stats.TokenEventsLast24h,
		"unresolved_events":     stats.UnresolvedEvents,
	})
}

type limitsRequest struct {
	MaxConcurrentSessions int   `json:"max_concurrent_sessions"`
	MaxSessionsPerDevice  int   `json:"max_sessions_per_device"`
	SessionTimeoutSec     int64 `json:"session_timeout_seconds"`
	RefreshTimeoutSec     int64 `json:"refresh_timeout_seconds"`
	EnforceSingleSession  bool  `json:"enforce_single_session"`
	AllowConcurrentMobile bool  `json:"allow_concurrent_mobile"`
}

func (h *Handler) HandleSetLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req limitsRequest
	if !h.decode(w, r, &req) {
		return
	}

	limits := models.DefaultSessionLimits(userID)
	if req.MaxConcurrentSessions > 0 {
		limits.MaxConcurrentSessions = req.MaxConcurrentSessions
	}
	if req.MaxSessionsPerDevice > 0 {
		limits.MaxSessionsPerDevice = req.MaxSessionsPerDevice
	}
	if req.SessionTimeoutSec > 0 {
		limits.SessionTimeout = time.Duration(req.SessionTimeoutSec) * time.Second
	}
	if req.RefreshTimeoutSec > 0 {
		limits.RefreshTimeout = time.Duration(req.RefreshTimeoutSec) * time.Second
	}
	limits.EnforceSingleSession = req.EnforceSingleSession
	limits.AllowConcurrentMobile = req.AllowConcurrentMobile

	if err := h.vault.SetSessionLimits(ctx, limits); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	devices, err := h.vault.ListDevices(ctx, userID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}

	views := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		views = append(views, map[string]any{
			"fingerprint":   d.Fingerprint,
			"device_name":   d.DeviceName,
			"device_type":   d.DeviceType,
			"trust_level":   string(d.TrustLevel),
			"session_count": d.SessionCount,
			"first_seen":    d.FirstSeen,
			"last_seen":     d.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views})
}

func (h *Handler) HandlePromoteDevice(w http.ResponseWriter, r *http.Request) {
	h.updateDeviceTrust(w, r, h.vault.PromoteDevice)
}

func (h *Handler) HandleBlockDevice(w http.ResponseWriter, r *http.Request) {
	h.updateDeviceTrust(w, r, h.vault.BlockDevice)
}

func (h *Handler) updateDeviceTrust(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, userID, fingerprint string) error) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	fingerprint := chi.URLParam(r, "fingerprint")
	if fingerprint == "" {
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "fingerprint is required"))
		return
	}

	if err := update(ctx, userID, fingerprint); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
