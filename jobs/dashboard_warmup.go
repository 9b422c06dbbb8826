package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/diptrack/diptrack/internal/jobs"
)

// DashboardWarmer recomputes the cached dashboard metrics.
type DashboardWarmer interface {
	Warm(ctx context.Context) error
}

// DashboardWarmupJob keeps the dashboard cache populated between writes.
type DashboardWarmupJob struct {
	Dashboard DashboardWarmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(warmer DashboardWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{Dashboard: warmer, Logger: logger, Metrics: metrics, Timeout: 20 * time.Second}
}

// Handle processes TaskDashboardWarmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Reason == "" {
		payload.Reason = "schedule"
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Dashboard.Warm(warmCtx); err != nil {
		j.logger().Error("warm dashboard", slog.String("reason", payload.Reason), slog.Any("error", err))
		return err
	}
	j.logger().Info("dashboard warmed", slog.String("reason", payload.Reason), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
