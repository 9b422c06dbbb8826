package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/rbac"
)

// Handler serves dashboard metrics.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers routes on an /api/dashboard router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermViewDashboard)).Get("/metrics", h.metrics)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Metrics(r.Context())
	if err != nil {
		h.logger.Error("dashboard metrics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=30")
	httpx.JSON(w, http.StatusOK, m)
}
