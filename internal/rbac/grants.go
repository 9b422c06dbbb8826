package rbac

// Route identifiers for page-level gating.
const (
	RouteHome         = "/"
	RouteDashboard    = "/dashboard"
	RouteBatches      = "/batches"
	RouteBatchCreate  = "/batches/create"
	RouteAlerts       = "/alerts"
	RouteQC           = "/qc"
	RouteFieldLatex   = "/latex/field"
	RouteLatexProcess = "/latex/process"
	RouteGloves       = "/gloves"
	RouteAdmin        = "/admin"
)

func roleGrants() map[Role][]Permission {
	return map[Role][]Permission{
		RoleAdmin: Permissions(),
		RoleSupervisor: {
			PermViewDashboard,
			PermViewBatches,
			PermEditBatch,
			PermViewAlerts,
			PermAcknowledgeAlerts,
			PermAssignAlerts,
			PermViewQC,
			PermViewQCResults,
			PermCreateQCResult,
			PermPerformQC,
			PermViewFieldLatex,
			PermCreateFieldLatex,
			PermViewLatexProcess,
			PermCreateLatexProcess,
			PermViewGloves,
			PermCreateGloves,
		},
		RoleOperator: {
			PermViewDashboard,
			PermViewBatches,
			PermCreateBatch,
			PermEditBatch,
			PermViewFieldLatex,
			PermCreateFieldLatex,
			PermViewLatexProcess,
			PermCreateLatexProcess,
			PermViewGloves,
			PermCreateGloves,
		},
		RoleQCOfficer: {
			PermViewDashboard,
			PermViewAlerts,
			PermAcknowledgeAlerts,
			PermViewQC,
			PermViewQCResults,
			PermCreateQCResult,
			PermPerformQC,
		},
	}
}

func routeRequirements() map[string]Permission {
	return map[string]Permission{
		RouteHome:         PermViewDashboard,
		RouteDashboard:    PermViewDashboard,
		RouteBatches:      PermViewBatches,
		RouteBatchCreate:  PermCreateBatch,
		RouteAlerts:       PermViewAlerts,
		RouteQC:           PermViewQC,
		RouteFieldLatex:   PermViewFieldLatex,
		RouteLatexProcess: PermViewLatexProcess,
		RouteGloves:       PermViewGloves,
		RouteAdmin:        PermViewAdmin,
	}
}
