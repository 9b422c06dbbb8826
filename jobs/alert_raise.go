package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/diptrack/diptrack/internal/alerts"
	jobmetrics "github.com/diptrack/diptrack/internal/jobs"
	"github.com/diptrack/diptrack/internal/platform/httpx"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AlertRaiser opens alerts on behalf of background jobs.
type AlertRaiser interface {
	Raise(ctx context.Context, input alerts.RaiseInput) (alerts.Alert, error)
}

// AlertRaiseJob turns failing QC results into alerts.
type AlertRaiseJob struct {
	Alerts  AlertRaiser
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertRaiseJob wires dependencies for the alert raise handler.
func NewAlertRaiseJob(raiser AlertRaiser, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertRaiseJob {
	return &AlertRaiseJob{Alerts: raiser, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAlertRaise tasks.
func (j *AlertRaiseJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Alerts == nil {
		return errors.New("alert raise: handler not configured")
	}
	var payload AlertRaisePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("alert raise: decode payload: %w", asynq.SkipRetry)
	}
	if payload.Title == "" {
		return fmt.Errorf("alert raise: empty title: %w", asynq.SkipRetry)
	}

	metrics := j.metrics()
	tracker := metrics.Track(TaskAlertRaise)
	defer func() {
		err = tracker.End(err)
	}()

	severity := alerts.Severity(payload.Severity)
	if severity == "" {
		severity = alerts.SeverityHigh
	}
	input := alerts.RaiseInput{
		Title:       payload.Title,
		Description: payload.Description,
		Severity:    severity,
		Source:      alerts.SourceQC,
	}
	if payload.BatchID != uuid.Nil {
		batchID := payload.BatchID
		input.BatchID = &batchID
	}

	alert, err := j.Alerts.Raise(ctx, input)
	if err != nil {
		if errors.Is(err, httpx.ErrValidation) {
			j.logger().Warn("discard invalid alert", slog.String("result_id", payload.ResultID.String()), slog.Any("error", err))
			return fmt.Errorf("alert raise: %v: %w", err, asynq.SkipRetry)
		}
		j.logger().Error("raise alert", slog.String("result_id", payload.ResultID.String()), slog.Any("error", err))
		return err
	}
	metrics.AddAlerts(string(alert.Severity), 1)
	j.logger().Info("alert raised",
		slog.String("alert_id", alert.ID.String()),
		slog.String("batch_code", payload.BatchCode),
		slog.String("result_id", payload.ResultID.String()),
	)
	return nil
}

func (j *AlertRaiseJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAlertRaise))
	}
	return slog.Default().With(slog.String("job", TaskAlertRaise))
}

func (j *AlertRaiseJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
