package rbac

import (
	"fmt"
	"sort"
	"sync"
)

// Table answers access decisions from static role grants and route requirements.
// A Table is immutable after construction and safe for concurrent use.
type Table struct {
	grants map[Role]map[Permission]struct{}
	routes map[string]Permission
}

// NewTable copies the supplied grants and routes into a Table. Every enumerated role
// must have a non-empty grant, and every permission referenced must be enumerated.
func NewTable(grants map[Role][]Permission, routes map[string]Permission) (*Table, error) {
	t := &Table{
		grants: make(map[Role]map[Permission]struct{}, len(grants)),
		routes: make(map[string]Permission, len(routes)),
	}
	for role, perms := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("rbac: grant for unknown role %q", role)
		}
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			if !p.Valid() {
				return nil, fmt.Errorf("rbac: role %s grants unknown permission %q", role, p)
			}
			set[p] = struct{}{}
		}
		t.grants[role] = set
	}
	for _, role := range allRoles {
		if len(t.grants[role]) == 0 {
			return nil, fmt.Errorf("rbac: role %s has no grant", role)
		}
	}
	for route, p := range routes {
		if !p.Valid() {
			return nil, fmt.Errorf("rbac: route %s requires unknown permission %q", route, p)
		}
		t.routes[route] = p
	}
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the plant's deployed decision table, built on first use.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := NewTable(roleGrants(), routeRequirements())
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

// HasPermission reports whether any of roles holds p. Unknown role names grant nothing.
func (t *Table) HasPermission(roles []string, p Permission) bool {
	if t == nil {
		return false
	}
	for _, name := range roles {
		if _, ok := t.grants[Role(name)][p]; ok {
			return true
		}
	}
	return false
}

// CanAccessRoute reports whether roles satisfy the permission required by route.
// Routes without a configured requirement are denied.
func (t *Table) CanAccessRoute(roles []string, route string) bool {
	p, ok := t.RequiredPermission(route)
	if !ok {
		return false
	}
	return t.HasPermission(roles, p)
}

// RequiredPermission returns the permission configured for route.
func (t *Table) RequiredPermission(route string) (Permission, bool) {
	if t == nil {
		return "", false
	}
	p, ok := t.routes[route]
	return p, ok
}

// Grants returns the sorted permissions held by role.
func (t *Table) Grants(role Role) []Permission {
	if t == nil {
		return nil
	}
	return sortedPermissions(t.grants[role])
}

// EffectivePermissions returns the sorted union of permissions held by roles.
func (t *Table) EffectivePermissions(roles []string) []Permission {
	if t == nil {
		return nil
	}
	union := make(map[Permission]struct{})
	for _, name := range roles {
		for p := range t.grants[Role(name)] {
			union[p] = struct{}{}
		}
	}
	return sortedPermissions(union)
}

// Routes returns a copy of the route requirement table.
func (t *Table) Routes() map[string]Permission {
	if t == nil {
		return nil
	}
	out := make(map[string]Permission, len(t.routes))
	for route, p := range t.routes {
		out[route] = p
	}
	return out
}

// HasRole reports whether role is present in roles.
func HasRole(roles []string, role Role) bool {
	for _, name := range roles {
		if Role(name) == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether at least one candidate is present in roles.
func HasAnyRole(roles []string, candidates ...Role) bool {
	for _, c := range candidates {
		if HasRole(roles, c) {
			return true
		}
	}
	return false
}

func sortedPermissions(set map[Permission]struct{}) []Permission {
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
