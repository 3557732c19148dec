package handler

import (
	"net/http"
	"time"

	"passq/internal/platform/middleware"
	"passq/internal/vault/service"
	dErrors "passq/pkg/domain-errors"
	httpErrors "passq/pkg/http-errors"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.vault.Register(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "registration failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{UserID: account.ID, Email: account.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`

	// Federated assertion fields, mutually exclusive with password login.
	Provider string `json:"provider,omitempty"`
	Subject  string `json:"subject,omitempty"`

	LocationCountry string `json:"location_country,omitempty"`
}

type tokenResponse struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func newTokenResponse(result *service.LoginResult) tokenResponse {
	return tokenResponse{
		UserID:       result.UserID,
		SessionID:    result.SessionID,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(result.ExpiresIn / time.Second),
	}
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	var credential service.Credential
	switch {
	case req.Provider != "":
		credential = service.FederatedAssertion{Provider: req.Provider, Subject: req.Subject, Email: req.Email}
	default:
		credential = service.PasswordCredential{Email: req.Email, Password: req.Password}
	}

	result, err := h.vault.Login(ctx, service.LoginRequest{
		Credential:      credential,
		MFACode:         req.MFACode,
		IPAddress:       middleware.ClientIP(r),
		UserAgent:       r.UserAgent(),
		LocationCountry: req.LocationCountry,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "refresh_token is required"))
		return
	}

	result, err := h.vault.Refresh(ctx, req.RefreshToken, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		h.logger.WarnContext(ctx, "token refresh failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(result))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.GetSessionID(ctx)

	if err := h.vault.Logout(ctx, sessionID); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokeRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req revokeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
		return
	}
	if req.Reason == "" {
		req.Reason = "user_request"
	}

	if err := h.vault.RevokeToken(ctx, req.Token, req.Reason); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokeAllResponse struct {
	RevokedSessions int `json:"revoked_sessions"`
}

// HandleRevokeAll terminates every session of the calling user, the panic
// button after a suspected credential compromise.
func (h *Handler) HandleRevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	count, err := h.vault.RevokeAllForUser(ctx, userID, "user_request")
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revokeAllResponse{RevokedSessions: count})
}
