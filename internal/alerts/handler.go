package alerts

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/rbac"
)

// Handler exposes alert endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW, validate: validator.New()}
}

// MountRoutes registers the routes on an /api/alerts router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermViewAlerts)).Get("/", h.list)
	r.With(h.rbac.RequireAny(rbac.PermAssignAlerts)).Post("/", h.create)
	r.With(h.rbac.RequireAny(rbac.PermAcknowledgeAlerts)).Patch("/{id}", h.patch)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")))
	if err != nil {
		h.logger.Error("list alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Alert{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	alert, err := h.service.Create(r.Context(), principalID(r), input)
	if err != nil {
		h.logger.Error("create alert", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, alert)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("alert id must be a UUID: %w", httpx.ErrValidation))
		return
	}
	var input PatchInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	canAssign := h.rbac.Allowed(r, rbac.PermAssignAlerts)
	alert, err := h.service.Patch(r.Context(), principalID(r), id, input, canAssign)
	if err != nil {
		h.logger.Warn("patch alert", slog.String("alert_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func principalID(r *http.Request) int64 {
	if p := rbac.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}
