package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diptrack/diptrack/internal/alerts"
	"github.com/diptrack/diptrack/internal/app"
	"github.com/diptrack/diptrack/internal/dashboard"
	jobmetrics "github.com/diptrack/diptrack/internal/jobs"
	"github.com/diptrack/diptrack/internal/platform/cache"
	"github.com/diptrack/diptrack/internal/platform/db"
	"github.com/diptrack/diptrack/internal/shared"
	"github.com/diptrack/diptrack/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName("diptrack-worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), dashboardCache, logger)
	alertService := alerts.NewService(alerts.NewRepository(pool), shared.NewAuditLogger(pool), dashboardCache, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	alertJob := jobs.NewAlertRaiseJob(alertService, logger, nil)
	warmupJob := jobs.NewDashboardWarmupJob(dashboardService, logger, nil)

	redisOpts, err := cache.JobConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("job queue options", slog.Any("error", err))
		os.Exit(1)
	}

	warmupTask, err := jobs.NewDashboardWarmupTask("schedule")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAlertRaise, Handler: alertJob.Handle},
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 10m", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	// Recompute right after writers bump the version instead of waiting for
	// the next scheduled warmup.
	if err := dashboardCache.Subscribe(ctx, func(version int64) {
		warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		if err := dashboardService.Warm(warmCtx); err != nil {
			logger.Warn("warm after bump", slog.Int64("version", version), slog.Any("error", err))
		}
	}); err != nil {
		logger.Warn("subscribe dashboard bumps", slog.Any("error", err))
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := idempotencyStore.Cleanup(ctx, 24*time.Hour)
				if err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
					continue
				}
				if removed > 0 {
					logger.Info("idempotency keys expired", slog.Int64("removed", removed))
				}
			}
		}
	}()

	if cfg.WorkerMetricsAddr != "" {
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		if err := prometheus.Register(jobmetrics.NewQueueCollector(inspector)); err != nil {
			logger.Warn("register queue collector", slog.Any("error", err))
		}
		mux := chi.NewRouter()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		metricsCfg := *cfg
		metricsCfg.AppAddr = cfg.WorkerMetricsAddr
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := app.Serve(ctx, app.NewServer(&metricsCfg, mux), nil, app.ShutdownGrace, logger); err != nil {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
