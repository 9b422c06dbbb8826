package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/rbac"
)

// Handler manages user management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers user routes on an /api/users router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bootstrap", h.bootstrap)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermManageUsers))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actor int64
	if p := rbac.PrincipalFromContext(r.Context()); p != nil {
		actor = p.UserID
	}
	user, err := h.service.CreateUser(r.Context(), actor, input)
	if err != nil {
		h.logger.Warn("create user failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	var input BootstrapInput
	if err := httpx.DecodeAndValidate(r, h.validate, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Bootstrap(r.Context(), input)
	if err != nil {
		h.logger.Warn("bootstrap rejected", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}
