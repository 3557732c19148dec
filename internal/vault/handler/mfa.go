package handler

import (
	"net/http"

	"passq/internal/platform/middleware"
	dErrors "passq/pkg/domain-errors"
	httpErrors "passq/pkg/http-errors"
)

type mfaSetupResponse struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

// HandleMFASetup starts TOTP enrollment. The returned secret and backup
// codes are shown exactly once; enrollment activates on the first verified
// code.
func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	enrollment, err := h.mfa.Enroll(ctx, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "mfa enrollment failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mfaSetupResponse{
		Secret:      enrollment.Secret,
		OTPAuthURL:  enrollment.OTPAuthURL,
		BackupCodes: enrollment.BackupCodes,
	})
}

type mfaVerifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) HandleMFAVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req mfaVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Code == "" {
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "code is required"))
		return
	}

	if err := h.mfa.Verify(ctx, userID, req.Code); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handler) HandleMFADisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.mfa.Disable(ctx, userID); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
