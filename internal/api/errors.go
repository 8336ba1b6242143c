package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/lexgate-core/internal/autherr"
	"github.com/nerrad567/lexgate-core/internal/identity"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Reason qualifies PERMISSION_DENIED and PKCE_STATE_MISMATCH.
	Reason string `json:"reason,omitempty"`

	// Candidates accompanies NO_ORGANIZATION.
	Candidates []autherr.Candidate `json:"candidates,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest             = "bad_request"
	ErrCodeNotFound               = "not_found"
	ErrCodeUnauthorized           = "unauthorised"
	ErrCodeInsufficientPermission = "insufficient_permission"
	ErrCodeConflict               = "conflict"
	ErrCodeInternal               = "internal_error"
	ErrCodeValidation             = "validation_error"
	ErrCodeUnavailable            = "service_unavailable"
	ErrCodeRateLimited            = "rate_limited"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeForbidden writes the 403 returned for authorization denials.
func writeForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, ErrCodeInsufficientPermission, "insufficient permission")
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a retryable 503 response.
func writeUnavailable(w http.ResponseWriter, message string) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// authErrorStatus maps each taxonomy code to its HTTP status.
var authErrorStatus = map[autherr.Code]int{
	autherr.CodeNoSession:              http.StatusUnauthorized,
	autherr.CodeNoOrganization:         http.StatusConflict,
	autherr.CodeNoActiveMembership:     http.StatusForbidden,
	autherr.CodeOrgAccessDenied:        http.StatusForbidden,
	autherr.CodePermissionDenied:       http.StatusForbidden,
	autherr.CodePKCEStateMismatch:      http.StatusBadRequest,
	autherr.CodeCryptoIntegrityFailure: http.StatusInternalServerError,
}

// writeAuthError maps an identity or authorization failure to a response.
// Taxonomy errors keep their code; store failures become 503; anything
// else is a 500. It reports whether err was a taxonomy error.
func writeAuthError(w http.ResponseWriter, err error) bool {
	if e, ok := autherr.As(err); ok {
		status, known := authErrorStatus[e.Code]
		if !known {
			status = http.StatusForbidden
		}
		writeJSON(w, status, Error{
			Status:     status,
			Code:       string(e.Code),
			Message:    e.Message,
			Reason:     e.Reason,
			Candidates: e.Candidates,
		})
		return true
	}
	if identity.IsRetryable(err) {
		writeUnavailable(w, "profile store unavailable, retry shortly")
		return false
	}
	writeInternalError(w, "internal server error")
	return false
}
