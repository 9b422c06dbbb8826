package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(raw string) (*rbac.Principal, error)
}

// Authenticator resolves the request principal. Bearer tokens win over the
// cookie session; a rejected token leaves the request anonymous.
type Authenticator struct {
	tokens TokenParser
	logger *slog.Logger
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens TokenParser, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, logger: logger}
}

// Middleware stores the resolved rbac.Principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := bearerToken(r); ok {
			principal, err := a.tokens.Parse(raw)
			if err != nil {
				a.logger.Debug("bearer token rejected", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), principal)))
			return
		}
		if principal := principalFromSession(shared.SessionFromContext(r.Context())); principal != nil {
			r = r.WithContext(rbac.ContextWithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

func principalFromSession(sess *shared.Session) *rbac.Principal {
	id, ok := sess.Identity()
	if !ok || id.UserID <= 0 {
		return nil
	}
	return &rbac.Principal{UserID: id.UserID, Email: id.Email, Name: id.Name, Roles: id.Roles}
}

func sessionIdentity(user *User) shared.Identity {
	return shared.Identity{UserID: user.ID, Email: user.Email, Name: user.FullName, Roles: user.Roles}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
