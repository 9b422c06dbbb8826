package rbac

import "context"

// Principal describes the authenticated actor of a request.
type Principal struct {
	UserID int64    `json:"userId"`
	Email  string   `json:"email"`
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles"`
}

// Authenticated reports whether the principal carries at least one role.
func (p *Principal) Authenticated() bool {
	return p != nil && len(p.Roles) > 0
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from ctx, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// RolesFromContext returns the role set of the request principal.
func RolesFromContext(ctx context.Context) []string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Roles
	}
	return nil
}
