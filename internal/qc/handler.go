package qc

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

// Handler exposes QC result endpoints.
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

// MountRoutes registers /results on a /api/qc router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermViewQCResults)).Get("/results", h.list)
	r.With(h.rbac.RequireAny(rbac.PermCreateQCResult)).Post("/results", h.create)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter *uuid.UUID
	if raw := r.URL.Query().Get("batchId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("batchId must be a UUID: %w", httpx.ErrValidation))
			return
		}
		filter = &id
	}
	results, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list qc results", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if results == nil {
		results = []Result{}
	}
	httpx.JSON(w, http.StatusOK, results)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actor int64
	if p := rbac.PrincipalFromContext(r.Context()); p != nil {
		actor = p.UserID
	}
	res, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.logger.Error("create qc result", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}
