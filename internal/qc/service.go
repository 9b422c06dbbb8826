package qc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/diptrack/diptrack/internal/shared"
)

// AlertEnqueuer hands failing results to the background alert pipeline.
type AlertEnqueuer interface {
	EnqueueFailureAlert(ctx context.Context, alert FailureAlert) error
}

// CacheBumper invalidates cached read models after writes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service implements QC result use cases.
type Service struct {
	repo   Repository
	alerts AlertEnqueuer
	audit  shared.AuditRecorder
	cache  CacheBumper
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. alerts, audit and cache may be nil.
func NewService(repo Repository, alerts AlertEnqueuer, audit shared.AuditRecorder, cache CacheBumper, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, alerts: alerts, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// List returns QC results newest first.
func (s *Service) List(ctx context.Context, batchID *uuid.UUID) ([]Result, error) {
	return s.repo.List(ctx, batchID)
}

// Create records a result tested by actorID. Failing results enqueue an alert;
// an enqueue failure is logged and does not fail the request.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (Result, error) {
	res, err := s.repo.Create(ctx, Result{
		ID:       uuid.New(),
		BatchID:  input.BatchID,
		TestType: input.TestType,
		Result:   input.Result,
		Passed:   input.Passed != nil && *input.Passed,
		Notes:    input.Notes,
		TestedBy: actorID,
		TestedAt: s.now().UTC(),
	})
	if err != nil {
		return Result{}, err
	}

	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "qc.create",
		Entity:   shared.AuditEntityQC,
		EntityID: res.ID.String(),
		Meta:     map[string]any{"batch_id": res.BatchID.String(), "passed": res.Passed},
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", "qc.create"), slog.Any("error", err))
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump", slog.Any("error", err))
		}
	}

	if !res.Passed && s.alerts != nil {
		alert := FailureAlert{
			BatchID:     res.BatchID,
			BatchCode:   res.BatchCode,
			ResultID:    res.ID,
			Title:       fmt.Sprintf("QC failure on batch %s", res.BatchCode),
			Description: fmt.Sprintf("%s test failed with result %q", res.TestType, res.Result),
		}
		if err := s.alerts.EnqueueFailureAlert(ctx, alert); err != nil {
			s.logger.Error("enqueue qc failure alert",
				slog.String("result_id", res.ID.String()),
				slog.Any("error", err),
			)
		}
	}
	return res, nil
}
