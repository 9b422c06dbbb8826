package rbac

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/diptrack/diptrack/internal/platform/httpx"
)

// Outcomes reported to a DecisionRecorder.
const (
	OutcomeAllowed         = "allowed"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeForbidden       = "forbidden"
)

// Paths the page guard redirects to.
const (
	LoginPath        = "/auth/login"
	UnauthorizedPath = "/unauthorized"
)

// DecisionRecorder receives one observation per enforced decision.
type DecisionRecorder interface {
	RecordDecision(subject string, outcome string)
}

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Table    *Table
	Logger   *slog.Logger
	Recorder DecisionRecorder
}

// RequireAny ensures the principal holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	subject := joinPermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if !p.Authenticated() {
				m.deny(w, r, subject, OutcomeUnauthenticated)
				return
			}
			for _, perm := range perms {
				if m.table().HasPermission(p.Roles, perm) {
					m.record(subject, OutcomeAllowed)
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, subject, OutcomeForbidden)
		})
	}
}

// RequireAll ensures the principal holds every permission.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	subject := joinPermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if !p.Authenticated() {
				m.deny(w, r, subject, OutcomeUnauthenticated)
				return
			}
			for _, perm := range perms {
				if !m.table().HasPermission(p.Roles, perm) {
					m.deny(w, r, subject, OutcomeForbidden)
					return
				}
			}
			m.record(subject, OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated only requires a principal with a non-empty role set.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).Authenticated() {
			m.deny(w, r, "authenticated", OutcomeUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoute gates a page. Anonymous visitors are sent to the login page and
// principals lacking the route permission to the access denied page.
func (m Middleware) RequireRoute(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if !p.Authenticated() {
				m.record("route:"+route, OutcomeUnauthenticated)
				target := LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			if !m.table().CanAccessRoute(p.Roles, route) {
				m.record("route:"+route, OutcomeForbidden)
				m.logger().Warn("route denied",
					slog.String("route", route),
					slog.Int64("user_id", p.UserID),
					slog.Any("roles", p.Roles),
				)
				http.Redirect(w, r, UnauthorizedPath, http.StatusSeeOther)
				return
			}
			m.record("route:"+route, OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// Allowed reports whether the request principal holds perm. Handlers use it for
// field-level checks inside an already gated route.
func (m Middleware) Allowed(r *http.Request, perm Permission) bool {
	return m.table().HasPermission(RolesFromContext(r.Context()), perm)
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, subject, outcome string) {
	m.record(subject, outcome)
	if outcome == OutcomeUnauthenticated {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	attrs := []any{slog.String("required", subject), slog.String("path", r.URL.Path)}
	if p := PrincipalFromContext(r.Context()); p != nil {
		attrs = append(attrs, slog.Int64("user_id", p.UserID), slog.Any("roles", p.Roles))
	}
	m.logger().Warn("permission denied", attrs...)
	httpx.RespondError(w, httpx.ErrForbidden)
}

func (m Middleware) record(subject, outcome string) {
	if m.Recorder != nil {
		m.Recorder.RecordDecision(subject, outcome)
	}
}

func (m Middleware) table() *Table {
	if m.Table != nil {
		return m.Table
	}
	return Default()
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func joinPermissions(perms []Permission) string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return strings.Join(names, "|")
}
