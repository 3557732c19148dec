package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"passq/internal/platform/middleware"
	"passq/internal/vault/models"
	dErrors "passq/pkg/domain-errors"
	httpErrors "passq/pkg/http-errors"
)

type secretWriteRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type secretMetadata struct {
	SecretID  string    `json:"secret_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newSecretMetadata(record *models.Secret) secretMetadata {
	return secretMetadata{
		SecretID:  record.ID,
		Name:      record.Name,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func (h *Handler) HandleCreateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req secretWriteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Value == "" {
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "value is required"))
		return
	}

	record, err := h.vault.CreateSecret(ctx, userID, req.Name, []byte(req.Value))
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSecretMetadata(record))
}

func (h *Handler) HandleReadSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	secretID := chi.URLParam(r, "secret_id")

	name, plaintext, err := h.vault.ReadSecret(ctx, userID, secretID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret_id": secretID,
		"name":      name,
		"value":     string(plaintext),
	})
}

func (h *Handler) HandleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	secretID := chi.URLParam(r, "secret_id")

	var req secretWriteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Value == "" {
		httpErrors.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "value is required"))
		return
	}

	if err := h.vault.UpdateSecret(ctx, userID, secretID, req.Name, []byte(req.Value)); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	secretID := chi.URLParam(r, "secret_id")

	if err := h.vault.DeleteSecret(ctx, userID, secretID); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListSecrets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	records, err := h.vault.ListSecrets(ctx, userID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	views := make([]secretMetadata, 0, len(records))
	for _, record := range records {
		views = append(views, newSecretMetadata(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"secrets": views})
}
