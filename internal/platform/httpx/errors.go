// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"strings"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", detail(err))
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", detail(err))
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", detail(err))
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", detail(err))
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", detail(err))
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", detail(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// detail strips the trailing sentinel text from wrapped errors so the message
// reads "batch 42" rather than "batch 42: resource not found".
func detail(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrNotFound, ErrDuplicate, ErrConflict, ErrValidation, ErrForbidden, ErrUnauthorized} {
		if msg == sentinel.Error() {
			return msg
		}
		if trimmed, ok := strings.CutSuffix(msg, ": "+sentinel.Error()); ok {
			return trimmed
		}
	}
	return msg
}
