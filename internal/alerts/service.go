package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/shared"
)

// CacheBumper invalidates cached read models after writes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service implements alert use cases.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	cache  CacheBumper
	logger *slog.Logger
}

// NewService constructs a Service. audit and cache may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, cache CacheBumper, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger}
}

// List returns alerts newest first.
func (s *Service) List(ctx context.Context, status Status) ([]Alert, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, httpx.ErrValidation)
	}
	return s.repo.List(ctx, status)
}

// Create opens a manual alert on behalf of actorID.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (Alert, error) {
	if !input.Severity.Valid() {
		return Alert{}, fmt.Errorf("unknown severity %q: %w", input.Severity, httpx.ErrValidation)
	}
	alert, err := s.repo.Create(ctx, Alert{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Severity:    input.Severity,
		Source:      SourceManual,
		BatchID:     input.BatchID,
		Status:      StatusActive,
		AssignedTo:  input.AssignedTo,
	})
	if err != nil {
		return Alert{}, err
	}
	s.afterWrite(ctx, actorID, "alert.create", alert)
	return alert, nil
}

// Patch moves an alert along its lifecycle and optionally reassigns it.
// canAssign reports whether the caller may change the assignee.
func (s *Service) Patch(ctx context.Context, actorID int64, id uuid.UUID, input PatchInput, canAssign bool) (Alert, error) {
	if input.Status == nil && input.AssignedTo == nil {
		return Alert{}, fmt.Errorf("status or assignedTo required: %w", httpx.ErrValidation)
	}
	if input.AssignedTo != nil && !canAssign {
		return Alert{}, fmt.Errorf("assigning alerts requires assign_alerts: %w", httpx.ErrForbidden)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return Alert{}, fmt.Errorf("unknown status %q: %w", *input.Status, httpx.ErrValidation)
		}
		if !CanTransition(current.Status, *input.Status) {
			return Alert{}, fmt.Errorf("cannot move alert from %s to %s: %w", current.Status, *input.Status, httpx.ErrValidation)
		}
	}
	updated, err := s.repo.Update(ctx, id, current.Status, input)
	if err != nil {
		return Alert{}, err
	}
	s.afterWrite(ctx, actorID, "alert.update", updated)
	return updated, nil
}

// Raise opens an alert from a background job.
func (s *Service) Raise(ctx context.Context, input RaiseInput) (Alert, error) {
	if strings.TrimSpace(input.Title) == "" {
		return Alert{}, fmt.Errorf("alert title required: %w", httpx.ErrValidation)
	}
	if !input.Severity.Valid() {
		return Alert{}, fmt.Errorf("unknown severity %q: %w", input.Severity, httpx.ErrValidation)
	}
	source := input.Source
	if source == "" {
		source = SourceQC
	}
	alert, err := s.repo.Create(ctx, Alert{
		ID:          uuid.New(),
		Title:       input.Title,
		Description: input.Description,
		Severity:    input.Severity,
		Source:      source,
		BatchID:     input.BatchID,
		Status:      StatusActive,
	})
	if err != nil {
		return Alert{}, err
	}
	s.afterWrite(ctx, 0, "alert.raise", alert)
	return alert, nil
}

func (s *Service) afterWrite(ctx context.Context, actorID int64, action string, alert Alert) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntityAlert,
		EntityID: alert.ID.String(),
		Meta:     map[string]any{"status": alert.Status, "severity": alert.Severity},
		At:       time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump", slog.Any("error", err))
		}
	}
}
