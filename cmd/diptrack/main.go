package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/diptrack/diptrack/internal/alerts"
	"github.com/diptrack/diptrack/internal/app"
	"github.com/diptrack/diptrack/internal/audit"
	"github.com/diptrack/diptrack/internal/auth"
	"github.com/diptrack/diptrack/internal/batches"
	"github.com/diptrack/diptrack/internal/dashboard"
	"github.com/diptrack/diptrack/internal/observability"
	"github.com/diptrack/diptrack/internal/pages"
	"github.com/diptrack/diptrack/internal/platform/cache"
	"github.com/diptrack/diptrack/internal/platform/db"
	"github.com/diptrack/diptrack/internal/qc"
	"github.com/diptrack/diptrack/internal/rbac"
	"github.com/diptrack/diptrack/internal/shared"
	"github.com/diptrack/diptrack/internal/users"
	"github.com/diptrack/diptrack/internal/view"
	"github.com/diptrack/diptrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName("diptrack-web"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "diptrack_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	table := rbac.Default()
	rbacMiddleware := rbac.Middleware{Table: table, Logger: logger, Recorder: metrics}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	if err := dashboardCache.Instrument(metrics.Registerer()); err != nil {
		logger.Warn("instrument dashboard cache", slog.Any("error", err))
	}

	redisOpts, err := cache.JobConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("job queue options", slog.Any("error", err))
		os.Exit(1)
	}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, tokens, templates, sessionManager, csrfManager)

	usersService := users.NewService(users.NewRepository(dbpool), auditLogger, logger)
	qcService := qc.NewService(qc.NewRepository(dbpool), jobClient, auditLogger, dashboardCache, logger)
	batchService := batches.NewService(batches.NewRepository(dbpool), auditLogger, idempotencyStore, dashboardCache, logger)
	alertService := alerts.NewService(alerts.NewRepository(dbpool), auditLogger, dashboardCache, logger)
	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), dashboardCache, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Authenticator:    auth.NewAuthenticator(tokens, logger),
		RBACMiddleware:   rbacMiddleware,
		Metrics:          metrics,
		Database:         dbpool,
		AuthHandler:      authHandler,
		RBACHandler:      rbac.NewHandler(logger, table, rbacMiddleware),
		UsersHandler:     users.NewHandler(logger, usersService, rbacMiddleware),
		BatchesHandler:   batches.NewHandler(logger, batchService, qcService, rbacMiddleware),
		QCHandler:        qc.NewHandler(logger, qcService, rbacMiddleware),
		AlertsHandler:    alerts.NewHandler(logger, alertService, rbacMiddleware),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		PagesHandler: pages.NewHandler(logger, templates, csrfManager, rbacMiddleware, pages.Sources{
			Dashboard: dashboardService,
			Batches:   batchService,
			Alerts:    alertService,
			QC:        qcService,
			Users:     usersService,
		}),
		JobHandler: jobs.NewHandler(inspector, logger),
	})

	server := app.NewServer(cfg, router)
	logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
	if err := app.Serve(ctx, server, nil, app.ShutdownGrace, logger); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
