// Package pages serves the server-rendered screens. Every screen is gated by
// its entry in the route requirement table.
package pages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/diptrack/diptrack/internal/alerts"
	"github.com/diptrack/diptrack/internal/batches"
	"github.com/diptrack/diptrack/internal/dashboard"
	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/qc"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
	"github.com/diptrack/diptrack/internal/users"
	"github.com/diptrack/diptrack/internal/view"
)

// DashboardSource provides dashboard metrics.
type DashboardSource interface {
	Metrics(ctx context.Context) (dashboard.Metrics, error)
}

// BatchSource provides batch reads and the create form action.
type BatchSource interface {
	List(ctx context.Context, filters batches.ListFilters) ([]batches.Batch, int, error)
	ListStages(ctx context.Context, batchID *uuid.UUID) ([]batches.Stage, error)
	ListGloves(ctx context.Context) ([]batches.GloveBatch, error)
	Create(ctx context.Context, actorID int64, input batches.CreateBatchInput, idempotencyKey string) (batches.Batch, error)
}

// AlertSource lists alerts.
type AlertSource interface {
	List(ctx context.Context, status alerts.Status) ([]alerts.Alert, error)
}

// QCSource lists QC results.
type QCSource interface {
	List(ctx context.Context, batchID *uuid.UUID) ([]qc.Result, error)
}

// UserSource lists user accounts.
type UserSource interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// Sources bundles the read models behind the pages.
type Sources struct {
	Dashboard DashboardSource
	Batches   BatchSource
	Alerts    AlertSource
	QC        QCSource
	Users     UserSource
}

// Handler renders the application pages.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	table     *rbac.Table
	src       Sources
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, rbacMW rbac.Middleware, src Sources) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	table := rbacMW.Table
	if table == nil {
		table = rbac.Default()
	}
	return &Handler{
		logger:    logger,
		templates: templates,
		csrf:      csrf,
		rbac:      rbacMW,
		table:     table,
		src:       src,
		validate:  validator.New(),
	}
}

// MountRoutes registers every page on the root router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get(rbac.UnauthorizedPath, h.unauthorized)

	r.With(h.rbac.RequireRoute(rbac.RouteHome)).Get(rbac.RouteHome, h.dashboard)
	r.With(h.rbac.RequireRoute(rbac.RouteDashboard)).Get(rbac.RouteDashboard, h.dashboard)
	r.With(h.rbac.RequireRoute(rbac.RouteBatches)).Get(rbac.RouteBatches, h.batches)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRoute(rbac.RouteBatchCreate))
		r.Get(rbac.RouteBatchCreate, h.batchForm)
		r.Post(rbac.RouteBatchCreate, h.createBatch)
	})
	r.With(h.rbac.RequireRoute(rbac.RouteAlerts)).Get(rbac.RouteAlerts, h.alerts)
	r.With(h.rbac.RequireRoute(rbac.RouteQC)).Get(rbac.RouteQC, h.qc)
	r.With(h.rbac.RequireRoute(rbac.RouteFieldLatex)).Get(rbac.RouteFieldLatex, h.fieldLatex)
	r.With(h.rbac.RequireRoute(rbac.RouteLatexProcess)).Get(rbac.RouteLatexProcess, h.latexProcess)
	r.With(h.rbac.RequireRoute(rbac.RouteGloves)).Get(rbac.RouteGloves, h.gloves)
	r.With(h.rbac.RequireRoute(rbac.RouteAdmin)).Get(rbac.RouteAdmin, h.admin)
}

var navOrder = []view.NavItem{
	{Label: "Dashboard", Path: rbac.RouteDashboard},
	{Label: "Batches", Path: rbac.RouteBatches},
	{Label: "Field latex", Path: rbac.RouteFieldLatex},
	{Label: "Latex process", Path: rbac.RouteLatexProcess},
	{Label: "Gloves", Path: rbac.RouteGloves},
	{Label: "Quality control", Path: rbac.RouteQC},
	{Label: "Alerts", Path: rbac.RouteAlerts},
	{Label: "Administration", Path: rbac.RouteAdmin},
}

// Navigation lists the pages roles may open, marking current as active.
func Navigation(table *rbac.Table, roles []string, current string) []view.NavItem {
	var items []view.NavItem
	for _, item := range navOrder {
		if !table.CanAccessRoute(roles, item.Path) {
			continue
		}
		item.Active = current == item.Path || strings.HasPrefix(current, item.Path+"/")
		items = append(items, item)
	}
	return items
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	ctx := r.Context()
	td := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Principal:   rbac.PrincipalFromContext(ctx),
		Data:        data,
	}
	if sess := shared.SessionFromContext(ctx); sess != nil && h.csrf != nil {
		token, err := h.csrf.EnsureToken(ctx, sess)
		if err != nil {
			h.logger.Warn("csrf token", slog.Any("error", err))
		}
		td.CSRFToken = token
		td.Flash = shared.FlashFromContext(ctx)
	}
	if td.Principal != nil {
		td.Nav = Navigation(h.table, td.Principal.Roles, r.URL.Path)
	}
	if err := h.templates.RenderStatus(w, status, name, td); err != nil {
		h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("load page data", slog.String("path", r.URL.Path), slog.Any("error", err))
	status := http.StatusInternalServerError
	if errors.Is(err, httpx.ErrValidation) {
		status = http.StatusBadRequest
	}
	h.render(w, r, status, "pages/error.html", "Something went wrong", errorPage{Message: shared.UserSafeMessage(err)})
}

type errorPage struct {
	Message string
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, "pages/unauthorized.html", "Access denied", nil)
}

func actorID(r *http.Request) int64 {
	if p := rbac.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
