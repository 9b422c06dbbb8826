package rbac

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/diptrack/diptrack/internal/platform/httpx"
)

// Handler exposes the permission model over JSON.
type Handler struct {
	logger *slog.Logger
	table  *Table
	rbac   Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, table *Table, rbac Middleware) *Handler {
	return &Handler{logger: logger, table: table, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAuthenticated).Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermViewAdmin))
		r.Get("/matrix", h.matrix)
	})
}

type roleGrant struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

type routeRequirement struct {
	Route      string     `json:"route"`
	Permission Permission `json:"permission"`
}

type matrixResponse struct {
	Roles       []roleGrant        `json:"roles"`
	Routes      []routeRequirement `json:"routes"`
	Permissions []Permission       `json:"permissions"`
}

func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	resp := matrixResponse{Permissions: Permissions()}
	for _, role := range Roles() {
		resp.Roles = append(resp.Roles, roleGrant{Role: role, Permissions: h.table.Grants(role)})
	}
	for route, perm := range h.table.Routes() {
		resp.Routes = append(resp.Routes, routeRequirement{Route: route, Permission: perm})
	}
	sort.Slice(resp.Routes, func(i, j int) bool { return resp.Routes[i].Route < resp.Routes[j].Route })
	httpx.JSON(w, http.StatusOK, resp)
}

type meResponse struct {
	Principal   *Principal   `json:"principal"`
	Permissions []Permission `json:"permissions"`
	Routes      []string     `json:"routes"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	resp := meResponse{Principal: p, Permissions: h.table.EffectivePermissions(p.Roles)}
	for route := range h.table.Routes() {
		if h.table.CanAccessRoute(p.Roles, route) {
			resp.Routes = append(resp.Routes, route)
		}
	}
	sort.Strings(resp.Routes)
	httpx.JSON(w, http.StatusOK, resp)
}
