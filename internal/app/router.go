package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/diptrack/diptrack/internal/alerts"
	"github.com/diptrack/diptrack/internal/audit"
	"github.com/diptrack/diptrack/internal/auth"
	"github.com/diptrack/diptrack/internal/batches"
	"github.com/diptrack/diptrack/internal/dashboard"
	"github.com/diptrack/diptrack/internal/observability"
	"github.com/diptrack/diptrack/internal/pages"
	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/qc"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
	"github.com/diptrack/diptrack/internal/users"
	"github.com/diptrack/diptrack/jobs"
	"github.com/diptrack/diptrack/web"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Authenticator  *auth.Authenticator
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
	Database       Pinger

	AuthHandler      *auth.Handler
	RBACHandler      *rbac.Handler
	UsersHandler     *users.Handler
	BatchesHandler   *batches.Handler
	QCHandler        *qc.Handler
	AlertsHandler    *alerts.Handler
	AuditHandler     *audit.Handler
	DashboardHandler *dashboard.Handler
	PagesHandler     *pages.Handler
	JobHandler       *jobs.Handler
}

// csrfExemptPaths accept JSON posts from clients that hold no session yet.
var csrfExemptPaths = []string{"/api/auth/token", "/api/users/bootstrap"}

// NewRouter constructs the chi.Router with DipTrack defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		CSRFExempt:     csrfExemptPaths,
	}) {
		r.Use(mw)
	}
	if params.Authenticator != nil {
		r.Use(params.Authenticator.Middleware)
	}
	r.Use(notePrincipal)

	r.Get("/healthz", healthHandler(params.Database, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(corsOptions(params.Config)))
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountAPIRoutes)
		}
		if params.RBACHandler != nil {
			r.Route("/rbac", params.RBACHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.BatchesHandler != nil {
			params.BatchesHandler.MountRoutes(r)
		}
		if params.QCHandler != nil {
			r.Route("/qc", params.QCHandler.MountRoutes)
		}
		if params.AlertsHandler != nil {
			r.Route("/alerts", params.AlertsHandler.MountRoutes)
		}
		if params.DashboardHandler != nil {
			r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no such endpoint")
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAny(rbac.PermSystemConfig))
			params.JobHandler.MountRoutes(r)
		})
	}

	if params.PagesHandler != nil {
		params.PagesHandler.MountRoutes(r)
	}

	staticFS, err := web.StaticFS()
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func corsOptions(cfg *Config) cors.Options {
	origins := []string{"http://localhost:3000"}
	if cfg != nil && len(cfg.CORSAllowedOrigins) > 0 {
		origins = cfg.CORSAllowedOrigins
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", shared.CSRFHeader, "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func healthHandler(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.Warn("health check database", slog.Any("error", err))
			httpx.JSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
			return
		}
		httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
	}
}

// staticCacheHandler lets browsers cache embedded assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
