package httpErrors

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "passq/pkg/domain-errors"
)

// ErrorBody is the wire shape for every error response. Internal state never
// leaks here: Kind is a stable category and Message is already sanitized by
// the service layer.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToHTTPStatus maps a domain error code onto an HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized,
		dErrors.CodeTokenExpired,
		dErrors.CodeTokenMalformed,
		dErrors.CodeSignatureInvalid,
		dErrors.CodeTokenRevoked,
		dErrors.CodeReuseDetected,
		dErrors.CodeInvalidCode:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeDeviceBlocked:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeSecretNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeSessionLimitExceeded:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as a {kind, message} body. Non-domain errors collapse
// to internal_error with a generic message so infrastructure details stay out
// of responses.
func WriteError(w http.ResponseWriter, err error) {
	var dErr *dErrors.Error
	body := ErrorBody{Kind: string(dErrors.CodeInternal), Message: "internal error"}
	status := http.StatusInternalServerError
	if errors.As(err, &dErr) {
		body = ErrorBody{Kind: string(dErr.Code), Message: dErr.Message}
		status = ToHTTPStatus(dErr.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
