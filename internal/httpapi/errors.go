package httpapi

import (
	"errors"
	"net/http"

	"github.com/carbonlabs/carbon/internal/apperr"
)

// errorResponse is the {error, field?, details?} body returned for
// validation failures.
type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrCacheNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUserNotFound), errors.Is(err, apperr.ErrRoleNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrPermissionDenied), errors.Is(err, apperr.ErrCannotDeleteSystemRole), errors.Is(err, apperr.ErrCannotDeleteSelf):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrUserAlreadyExists), errors.Is(err, apperr.ErrRoleAlreadyExists), errors.Is(err, apperr.ErrWeakPassword), errors.Is(err, apperr.ErrInvalidRoleAssignment):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body with its mapped status. Auth
// failures additionally carry WWW-Authenticate.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="carbon"`)
	}

	body := errorResponse{Error: err.Error()}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
		body.Details = verr.Message
	}
	writeJSON(w, status, body)
}
