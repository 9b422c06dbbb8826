package rbac

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleSet(roles ...Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func TestSingleRoleMatchesGrantTable(t *testing.T) {
	table := Default()
	grants := roleGrants()
	for _, role := range Roles() {
		granted := make(map[Permission]bool)
		for _, p := range grants[role] {
			granted[p] = true
		}
		for _, p := range Permissions() {
			assert.Equal(t, granted[p], table.HasPermission(roleSet(role), p), "role=%s permission=%s", role, p)
		}
	}
}

func TestEveryRoleHasNonEmptyGrant(t *testing.T) {
	table := Default()
	for _, role := range Roles() {
		assert.NotEmpty(t, table.Grants(role), "role %s", role)
	}
	assert.Len(t, table.Grants(RoleAdmin), len(Permissions()))
}

func TestEmptyRoleSetDeniesEverything(t *testing.T) {
	table := Default()
	for _, p := range Permissions() {
		assert.False(t, table.HasPermission(nil, p))
		assert.False(t, table.HasPermission([]string{}, p))
	}
	for route := range table.Routes() {
		assert.False(t, table.CanAccessRoute(nil, route))
	}
}

func TestUnionOfRoles(t *testing.T) {
	table := Default()
	for _, a := range Roles() {
		for _, b := range Roles() {
			for _, p := range Permissions() {
				want := table.HasPermission(roleSet(a), p) || table.HasPermission(roleSet(b), p)
				assert.Equal(t, want, table.HasPermission(roleSet(a, b), p), "%s+%s %s", a, b, p)
			}
		}
	}
}

func TestUnknownRoleBehavesAsAbsent(t *testing.T) {
	table := Default()
	unknown := []string{"superuser", "", "ADMIN", " admin", "qc-officer"}
	for _, p := range Permissions() {
		for _, u := range unknown {
			assert.False(t, table.HasPermission([]string{u}, p))
			assert.Equal(t,
				table.HasPermission(roleSet(RoleOperator), p),
				table.HasPermission([]string{u, string(RoleOperator)}, p),
			)
		}
	}
}

func TestUnmappedRouteIsDenied(t *testing.T) {
	table := Default()
	everything := roleSet(Roles()...)
	assert.False(t, table.CanAccessRoute(everything, "/not-configured"))
	assert.False(t, table.CanAccessRoute(everything, "/some/unlisted/route"))
	assert.False(t, table.CanAccessRoute(everything, "/admin/"))
	assert.False(t, table.CanAccessRoute(everything, ""))
}

func TestScenarios(t *testing.T) {
	table := Default()
	cases := []struct {
		name  string
		roles []string
		perm  Permission
		route string
		want  bool
	}{
		{name: "admin manages users", roles: []string{"admin"}, perm: PermManageUsers, want: true},
		{name: "qc officer cannot manage users", roles: []string{"qc_officer"}, perm: PermManageUsers, want: false},
		{name: "operator grants create batch in union", roles: []string{"operator", "qc_officer"}, perm: PermCreateBatch, want: true},
		{name: "no roles no dashboard", roles: []string{}, perm: PermViewDashboard, want: false},
		{name: "admin reaches admin page", roles: []string{"admin"}, route: "/admin", want: true},
		{name: "operator kept out of admin page", roles: []string{"operator"}, route: "/admin", want: false},
		{name: "admin denied unlisted route", roles: []string{"admin"}, route: "/some/unlisted/route", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.route != "" {
				assert.Equal(t, tc.want, table.CanAccessRoute(tc.roles, tc.route))
				return
			}
			assert.Equal(t, tc.want, table.HasPermission(tc.roles, tc.perm))
		})
	}
}

func TestSupervisorCannotCreateBatches(t *testing.T) {
	table := Default()
	assert.True(t, table.HasPermission(roleSet(RoleSupervisor), PermEditBatch))
	assert.False(t, table.HasPermission(roleSet(RoleSupervisor), PermCreateBatch))
	assert.False(t, table.CanAccessRoute(roleSet(RoleSupervisor), RouteBatchCreate))
	assert.True(t, table.CanAccessRoute(roleSet(RoleSupervisor), RouteBatches))
}

func TestHasRoleAndHasAnyRole(t *testing.T) {
	roles := []string{"operator", "bogus"}
	assert.True(t, HasRole(roles, RoleOperator))
	assert.False(t, HasRole(roles, RoleAdmin))
	assert.False(t, HasRole(nil, RoleAdmin))
	assert.True(t, HasAnyRole(roles, RoleAdmin, RoleOperator))
	assert.False(t, HasAnyRole(roles, RoleAdmin, RoleQCOfficer))
	assert.False(t, HasAnyRole(roles))
}

func TestRepeatedCallsAreStable(t *testing.T) {
	table := Default()
	roles := []string{"supervisor"}
	first := table.HasPermission(roles, PermAssignAlerts)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, first, table.HasPermission(roles, PermAssignAlerts))
			assert.True(t, table.CanAccessRoute(roles, RouteAlerts))
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"supervisor"}, roles)
}

func TestTableIsIsolatedFromCallerMaps(t *testing.T) {
	grants := roleGrants()
	routes := routeRequirements()
	table, err := NewTable(grants, routes)
	require.NoError(t, err)

	grants[RoleQCOfficer] = append(grants[RoleQCOfficer], PermManageUsers)
	routes["/backdoor"] = PermViewDashboard
	assert.False(t, table.HasPermission(roleSet(RoleQCOfficer), PermManageUsers))
	assert.False(t, table.CanAccessRoute(roleSet(RoleAdmin), "/backdoor"))

	got := table.Routes()
	got[RouteAdmin] = PermViewDashboard
	assert.False(t, table.CanAccessRoute(roleSet(RoleOperator), RouteAdmin))
}

func TestNewTableRejectsIncompleteConfiguration(t *testing.T) {
	grants := roleGrants()
	delete(grants, RoleQCOfficer)
	_, err := NewTable(grants, routeRequirements())
	require.Error(t, err)

	grants = roleGrants()
	grants[RoleOperator] = nil
	_, err = NewTable(grants, routeRequirements())
	require.Error(t, err)

	grants = roleGrants()
	grants["auditor"] = []Permission{PermViewDashboard}
	_, err = NewTable(grants, routeRequirements())
	require.Error(t, err)

	routes := routeRequirements()
	routes["/reports"] = Permission("view_reports")
	_, err = NewTable(roleGrants(), routes)
	require.Error(t, err)
}

func TestEffectivePermissionsIsSortedUnion(t *testing.T) {
	table := Default()
	perms := table.EffectivePermissions([]string{"qc_officer", "operator", "nobody"})
	assert.Contains(t, perms, PermCreateBatch)
	assert.Contains(t, perms, PermPerformQC)
	assert.NotContains(t, perms, PermManageUsers)
	for i := 1; i < len(perms); i++ {
		assert.Less(t, string(perms[i-1]), string(perms[i]))
	}
	assert.Empty(t, table.EffectivePermissions(nil))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" QC_Officer ")
	require.NoError(t, err)
	assert.Equal(t, RoleQCOfficer, role)

	_, err = ParseRole("")
	assert.Error(t, err)
	_, err = ParseRole("manager")
	assert.Error(t, err)
}

func TestNilTableDenies(t *testing.T) {
	var table *Table
	assert.False(t, table.HasPermission([]string{"admin"}, PermViewDashboard))
	assert.False(t, table.CanAccessRoute([]string{"admin"}, RouteHome))
}
