package batches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diptrack/diptrack/internal/platform/httpx"
	"github.com/diptrack/diptrack/internal/shared"
)

const idempotencyModule = "batches.create"

// CacheBumper invalidates cached read models after writes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service implements batch and process stage use cases.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	idem   shared.IdempotencyGuard
	cache  CacheBumper
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. audit, idem and cache may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, idem shared.IdempotencyGuard, cache CacheBumper, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idem: idem, cache: cache, logger: logger, now: time.Now}
}

// List returns a page of batches.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Batch, int, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, 0, fmt.Errorf("unknown status %q: %w", filters.Status, httpx.ErrValidation)
	}
	return s.repo.List(ctx, filters)
}

// Get returns one batch.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Batch, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new batch operated by actorID. A non-empty idempotency
// key is claimed first and released again when the insert fails.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateBatchInput, idempotencyKey string) (Batch, error) {
	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Batch{}, fmt.Errorf("%s: %w", err.Error(), httpx.ErrConflict)
			}
			return Batch{}, err
		}
	}
	now := s.now().UTC()
	batch, err := s.repo.Create(ctx, Batch{
		ID:           uuid.New(),
		BatchCode:    strings.TrimSpace(input.BatchCode),
		ProductType:  strings.TrimSpace(input.ProductType),
		Shift:        input.Shift,
		OperatorID:   actorID,
		Status:       StatusActive,
		CurrentStage: 1,
		Notes:        input.Notes,
		StartDate:    now,
	})
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Batch{}, err
	}
	s.afterWrite(ctx, actorID, "batch.create", shared.AuditEntityBatch, batch.ID.String(), map[string]any{
		"batch_code":   batch.BatchCode,
		"product_type": batch.ProductType,
	})
	return batch, nil
}

// Update applies a partial update to a batch.
func (s *Service) Update(ctx context.Context, actorID int64, id uuid.UUID, input UpdateBatchInput) (Batch, error) {
	if input.Status == nil && input.Notes == nil && input.Shift == nil {
		return Batch{}, fmt.Errorf("nothing to update: %w", httpx.ErrValidation)
	}
	if input.Status != nil && !input.Status.Valid() {
		return Batch{}, fmt.Errorf("unknown status %q: %w", *input.Status, httpx.ErrValidation)
	}
	batch, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return Batch{}, err
	}
	meta := map[string]any{}
	if input.Status != nil {
		meta["status"] = *input.Status
	}
	s.afterWrite(ctx, actorID, "batch.update", shared.AuditEntityBatch, id.String(), meta)
	return batch, nil
}

// Delete removes a batch.
func (s *Service) Delete(ctx context.Context, actorID int64, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.afterWrite(ctx, actorID, "batch.delete", shared.AuditEntityBatch, id.String(), nil)
	return nil
}

// ListStages returns recorded process stages.
func (s *Service) ListStages(ctx context.Context, batchID *uuid.UUID) ([]Stage, error) {
	return s.repo.ListStages(ctx, batchID)
}

// RecordStage stores a latex process stage and advances the batch.
func (s *Service) RecordStage(ctx context.Context, actorID int64, input RecordStageInput) (Stage, Batch, error) {
	if input.StageNumber < 1 || input.StageNumber > StageCount {
		return Stage{}, Batch{}, fmt.Errorf("stage must be between 1 and %d: %w", StageCount, httpx.ErrValidation)
	}
	data, err := normalizeJSON(input.Data)
	if err != nil {
		return Stage{}, Batch{}, err
	}
	stage, batch, err := s.repo.RecordStage(ctx, input.BatchID, input.StageNumber, data, func(current Status) Progress {
		return ProgressAfter(input.StageNumber, current)
	})
	if err != nil {
		return Stage{}, Batch{}, err
	}
	s.afterWrite(ctx, actorID, "batch.stage", shared.AuditEntityStage, stage.ID.String(), map[string]any{
		"batch_id": input.BatchID.String(),
		"stage":    input.StageNumber,
	})
	return stage, batch, nil
}

// RecordFieldLatex stores the field latex collection stage.
func (s *Service) RecordFieldLatex(ctx context.Context, actorID int64, input FieldLatexInput) (Stage, Batch, error) {
	return s.RecordStage(ctx, actorID, RecordStageInput{BatchID: input.BatchID, StageNumber: 1, Data: input.Data})
}

// ListGloves returns glove batches with their stage-1 payloads.
func (s *Service) ListGloves(ctx context.Context) ([]GloveBatch, error) {
	list, stages, err := s.repo.ListByProductTypes(ctx, GloveProductTypes())
	if err != nil {
		return nil, err
	}
	byBatch := make(map[uuid.UUID]json.RawMessage, len(stages))
	for _, st := range stages {
		byBatch[st.BatchID] = st.Data
	}
	out := make([]GloveBatch, 0, len(list))
	for _, b := range list {
		out = append(out, gloveView(b, byBatch[b.ID]))
	}
	return out, nil
}

// CreateGlove creates a glove batch and its stage-1 payload atomically.
func (s *Service) CreateGlove(ctx context.Context, actorID int64, input CreateGloveInput) (GloveBatch, error) {
	payload, err := json.Marshal(GloveData{
		LatexBatchID:   input.LatexBatchID,
		ContinuousData: emptyObject(input.ContinuousData),
		ProcessData:    emptyObject(input.ProcessData),
		QCData:         emptyObject(input.QCData),
	})
	if err != nil {
		return GloveBatch{}, err
	}
	batch, _, err := s.repo.CreateWithStage(ctx, Batch{
		ID:           uuid.New(),
		BatchCode:    strings.TrimSpace(input.GloveBatchID),
		ProductType:  input.ProductType,
		Shift:        "Day",
		OperatorID:   actorID,
		Status:       StatusInProgress,
		CurrentStage: 1,
		StartDate:    s.now().UTC(),
	}, payload)
	if err != nil {
		return GloveBatch{}, err
	}
	s.afterWrite(ctx, actorID, "glove.create", shared.AuditEntityBatch, batch.ID.String(), map[string]any{
		"batch_code":     batch.BatchCode,
		"latex_batch_id": input.LatexBatchID,
	})
	return gloveView(batch, payload), nil
}

func gloveView(b Batch, raw json.RawMessage) GloveBatch {
	var data GloveData
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &data)
	}
	return GloveBatch{
		ID:             b.ID,
		GloveBatchID:   b.BatchCode,
		LatexBatchID:   data.LatexBatchID,
		ProductType:    b.ProductType,
		Status:         b.Status,
		ManufacturedAt: b.StartDate,
		ContinuousData: emptyObject(data.ContinuousData),
		ProcessData:    emptyObject(data.ProcessData),
		QCData:         emptyObject(data.QCData),
	}
}

func (s *Service) afterWrite(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("dashboard cache bump", slog.Any("error", err))
		}
	}
}

func normalizeJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("data must be valid JSON: %w", httpx.ErrValidation)
	}
	return raw, nil
}

func emptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
