package rbac

import (
	"fmt"
	"strings"
)

// Role is a named category of user with a fixed permission grant.
type Role string

// Roles known to the plant. The set is closed and defined at deploy time.
const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleOperator   Role = "operator"
	RoleQCOfficer  Role = "qc_officer"
)

// Permission is a capability gating one action or view.
type Permission string

// Dashboard.
const (
	PermViewDashboard Permission = "view_dashboard"
)

// Batches.
const (
	PermViewBatches Permission = "view_batches"
	PermCreateBatch Permission = "create_batch"
	PermEditBatch   Permission = "edit_batch"
	PermDeleteBatch Permission = "delete_batch"
)

// Alerts.
const (
	PermViewAlerts        Permission = "view_alerts"
	PermAcknowledgeAlerts Permission = "acknowledge_alerts"
	PermAssignAlerts      Permission = "assign_alerts"
)

// Quality control.
const (
	PermViewQC         Permission = "view_qc"
	PermViewQCResults  Permission = "view_qc_results"
	PermCreateQCResult Permission = "create_qc_result"
	PermPerformQC      Permission = "perform_qc"
)

// Latex manufacturing.
const (
	PermViewFieldLatex     Permission = "view_field_latex"
	PermCreateFieldLatex   Permission = "create_field_latex"
	PermViewLatexProcess   Permission = "view_latex_process"
	PermCreateLatexProcess Permission = "create_latex_process"
	PermViewGloves         Permission = "view_gloves"
	PermCreateGloves       Permission = "create_gloves"
)

// Administration.
const (
	PermViewAdmin    Permission = "view_admin"
	PermManageUsers  Permission = "manage_users"
	PermSystemConfig Permission = "system_config"
)

var allRoles = []Role{RoleAdmin, RoleSupervisor, RoleOperator, RoleQCOfficer}

var allPermissions = []Permission{
	PermViewDashboard,
	PermViewBatches, PermCreateBatch, PermEditBatch, PermDeleteBatch,
	PermViewAlerts, PermAcknowledgeAlerts, PermAssignAlerts,
	PermViewQC, PermViewQCResults, PermCreateQCResult, PermPerformQC,
	PermViewFieldLatex, PermCreateFieldLatex, PermViewLatexProcess, PermCreateLatexProcess,
	PermViewGloves, PermCreateGloves,
	PermViewAdmin, PermManageUsers, PermSystemConfig,
}

// Valid reports whether r belongs to the enumerated role set.
func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// Valid reports whether p belongs to the enumerated permission set.
func (p Permission) Valid() bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

func (p Permission) String() string { return string(p) }

// ParseRole validates a role name coming from user input.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	if role == "" {
		return "", fmt.Errorf("rbac: role required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("rbac: unknown role %q (valid roles: %s)", raw, strings.Join(RoleNames(), ", "))
	}
	return role, nil
}

// Roles returns the enumerated roles in declaration order.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// RoleNames returns the enumerated role names.
func RoleNames() []string {
	names := make([]string, len(allRoles))
	for i, r := range allRoles {
		names[i] = string(r)
	}
	return names
}

// Permissions returns the enumerated permissions in declaration order.
func Permissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}
