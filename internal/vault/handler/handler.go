// Package handler is the thin HTTP layer over the vault service. Handlers
// decode, delegate, and encode; policy and token decisions live in the
// service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"passq/internal/mfa"
	"passq/internal/platform/middleware"
	"passq/internal/token"
	"passq/internal/vault/models"
	"passq/internal/vault/service"
	dErrors "passq/pkg/domain-errors"
	httpErrors "passq/pkg/http-errors"
)

// VaultService is the surface of the vault core the HTTP layer depends on.
type VaultService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*service.LoginResult, error)
	Validate(ctx context.Context, accessToken string) (*token.Claims, error)
	Logout(ctx context.Context, sessionID string) error
	RevokeToken(ctx context.Context, tokenString, reason string) error
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)

	ListSessions(ctx context.Context, userID string) ([]*service.SessionInfo, error)
	TerminateSession(ctx context.Context, userID, sessionID string) error
	UserStats(ctx context.Context, userID string) (*service.Stats, error)
	SetSessionLimits(ctx context.Context, limits *models.SessionLimits) error

	CreateSecret(ctx context.Context, userID, name string, plaintext []byte) (*models.Secret, error)
	ReadSecret(ctx context.Context, userID, secretID string) (string, []byte, error)
	UpdateSecret(ctx context.Context, userID, secretID, name string, plaintext []byte) error
	DeleteSecret(ctx context.Context, userID, secretID string) error
	ListSecrets(ctx context.Context, userID string) ([]*models.Secret, error)

	ListDevices(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
	PromoteDevice(ctx context.Context, userID, fingerprint string) error
	BlockDevice(ctx context.Context, userID, fingerprint string) error

	SaveMonitoringRule(ctx context.Context, rule *models.MonitoringRule) error
	ListMonitoringRules(ctx context.Context) ([]*models.MonitoringRule, error)
	SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error
}

// MFAService is the enrollment surface; code verification during login goes
// through the vault service.
type MFAService interface {
	Enroll(ctx context.Context, userID string) (*mfa.Enrollment, error)
	Verify(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID string) error
}

type Handler struct {
	vault  VaultService
	mfa    MFAService
	logger *slog.Logger
}

func New(vault VaultService, mfaService MFAService, logger *slog.Logger) *Handler {
	return &Handler{vault: vault, mfa: mfaService, logger: logger}
}

// Register wires the public routes with the chi router. The token lifecycle
// endpoints answer on both the /auth prefix and the bare paths.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/token/refresh", h.HandleRefresh)

	r.Post("/login", h.HandleLogin)
	r.Post("/token/refresh", h.HandleRefresh)
}

// RegisterProtected wires the routes that require a valid access token. The
// parent router applies RequireAuth to this group.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/logout", h.HandleLogout)
	r.Post("/auth/revoke", h.HandleRevoke)
	r.Post("/auth/revoke-all", h.HandleRevokeAll)

	r.Get("/sessions", h.HandleListSessions)
	r.Get("/sessions/stats", h.HandleStats)
	r.Put("/sessions/limits", h.HandleSetLimits)
	r.Delete("/sessions/{session_id}", h.HandleTerminateSession)

	r.Post("/mfa/setup", h.HandleMFASetup)
	r.Post("/mfa/verify", h.HandleMFAVerify)
	r.Post("/mfa/disable", h.HandleMFADisable)

	r.Post("/secrets", h.HandleCreateSecret)
	r.Get("/secrets", h.HandleListSecrets)
	r.Get("/secrets/{secret_id}", h.HandleReadSecret)
	r.Put("/secrets/{secret_id}", h.HandleUpdateSecret)
	r.Delete("/secrets/{secret_id}", h.HandleDeleteSecret)

	r.Get("/devices", h.HandleListDevices)
	r.Post("/devices/{fingerprint}/trust", h.HandlePromoteDevice)
	r.Post("/devices/{fingerprint}/block", h.HandleBlockDevice)
}

// RegisterAdmin wires the monitoring rule management routes. The parent
// router guards this group with the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/rules", h.HandleListRules)
	r.Post("/admin/rules", h.HandleSaveRule)
	r.Put("/admin/rules/{rule_id}/enabled", h.HandleSetRuleEnabled)
}

// NewRouter assembles the full HTTP surface with the standard middleware
// stack and auth guard. Extra mounts (health probes, metrics) are registered
// unauthenticated before the business routes.
func NewRouter(h *Handler, logger *slog.Logger, mounts ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	for _, mount := range mounts {
		mount(r)
	}

	h.Register(r)
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireAuth(&validatorAdapter{vault: h.vault}, logger))
		h.RegisterProtected(pr)
	})
	return r
}

// validatorAdapter bridges the vault service's token validation to the auth
// middleware contract.
type validatorAdapter struct {
	vault VaultService
}

func (a *validatorAdapter) Validate(ctx context.Context, accessToken string) (*middleware.AccessClaims, error) {
	claims, err := a.vault.Validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &middleware.AccessClaims{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		JTI:       claims.ID,
		Scope:     claims.Scope,
	}, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request body",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON in request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
