package shared

import (
	"errors"

	"github.com/diptrack/diptrack/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage turns an error into text that can be shown on a page without
// leaking internals.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrNotFound), errors.Is(err, httpx.ErrNotFound):
		return "The requested record does not exist"
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrDuplicate), errors.Is(err, httpx.ErrConflict):
		return err.Error()
	case errors.Is(err, httpx.ErrForbidden):
		return "You do not have access to this action"
	default:
		return "Something went wrong, please try again"
	}
}
