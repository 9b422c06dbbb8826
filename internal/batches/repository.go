package batches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diptrack/diptrack/internal/platform/db"
	"github.com/diptrack/diptrack/internal/platform/httpx"
)

// Repository persists batches and their process stages.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Batch, int, error)
	Get(ctx context.Context, id uuid.UUID) (Batch, error)
	Create(ctx context.Context, batch Batch) (Batch, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateBatchInput) (Batch, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListStages(ctx context.Context, batchID *uuid.UUID) ([]Stage, error)
	RecordStage(ctx context.Context, batchID uuid.UUID, stage int, data json.RawMessage, progress func(Status) Progress) (Stage, Batch, error)
	CreateWithStage(ctx context.Context, batch Batch, data json.RawMessage) (Batch, Stage, error)
	ListByProductTypes(ctx context.Context, productTypes []string) ([]Batch, []Stage, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const batchColumns = `
	b.id, b.batch_code, b.product_type, b.shift, b.operator_id, COALESCE(u.full_name, ''),
	b.status, b.current_stage, b.stages_completed, b.progress_percentage, b.notes,
	b.start_date, b.created_at, b.updated_at`

const batchFrom = `
	FROM batches b
	LEFT JOIN users u ON u.id = b.operator_id`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(
		&b.ID, &b.BatchCode, &b.ProductType, &b.Shift, &b.OperatorID, &b.OperatorName,
		&b.Status, &b.CurrentStage, &b.StagesCompleted, &b.ProgressPercentage, &b.Notes,
		&b.StartDate, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

// List returns batches newest first with the total matching count.
func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Batch, int, error) {
	var (
		where []string
		args  []any
	)
	if filters.Status != "" {
		args = append(args, filters.Status)
		where = append(where, fmt.Sprintf("b.status = $%d", len(args)))
	}
	if filters.ProductType != "" {
		args = append(args, filters.ProductType)
		where = append(where, fmt.Sprintf("b.product_type = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM batches b"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("batches: count: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filters.Offset)
	query := "SELECT" + batchColumns + batchFrom + clause +
		fmt.Sprintf(" ORDER BY b.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("batches: list: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// Get loads one batch.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Batch, error) {
	return getBatch(ctx, r.pool, id, false)
}

func getBatch(ctx context.Context, q db.Querier, id uuid.UUID, forUpdate bool) (Batch, error) {
	query := "SELECT" + batchColumns + batchFrom + " WHERE b.id = $1"
	if forUpdate {
		query += " FOR UPDATE OF b"
	}
	b, err := scanBatch(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, fmt.Errorf("batch %s: %w", id, httpx.ErrNotFound)
		}
		return Batch{}, err
	}
	return b, nil
}

// Create inserts a batch.
func (r *PGRepository) Create(ctx context.Context, batch Batch) (Batch, error) {
	if err := insertBatch(ctx, r.pool, batch); err != nil {
		return Batch{}, err
	}
	return r.Get(ctx, batch.ID)
}

func insertBatch(ctx context.Context, q db.Querier, b Batch) error {
	_, err := q.Exec(ctx, `
INSERT INTO batches (id, batch_code, product_type, shift, operator_id, status, current_stage,
                     stages_completed, progress_percentage, notes, start_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.BatchCode, b.ProductType, b.Shift, b.OperatorID, b.Status, b.CurrentStage,
		b.StagesCompleted, b.ProgressPercentage, b.Notes, b.StartDate)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("batch code %q already exists: %w", b.BatchCode, httpx.ErrDuplicate)
		}
		return fmt.Errorf("batches: insert: %w", err)
	}
	return nil
}

// Update applies a partial update.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, input UpdateBatchInput) (Batch, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE batches SET
	status = COALESCE($2, status),
	notes = COALESCE($3, notes),
	shift = COALESCE($4, shift),
	updated_at = NOW()
WHERE id = $1`, id, input.Status, input.Notes, input.Shift)
	if err != nil {
		return Batch{}, fmt.Errorf("batches: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Batch{}, fmt.Errorf("batch %s: %w", id, httpx.ErrNotFound)
	}
	return r.Get(ctx, id)
}

// Delete removes a batch with its stages and QC results.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("batches: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

const stageSelect = `
SELECT s.id, s.batch_id, b.batch_code, s.stage, s.data, s.updated_at
FROM batch_stages s
JOIN batches b ON b.id = s.batch_id`

func scanStages(rows pgx.Rows) ([]Stage, error) {
	defer rows.Close()
	var out []Stage
	for rows.Next() {
		var s Stage
		if err := rows.Scan(&s.ID, &s.BatchID, &s.BatchCode, &s.StageNumber, &s.Data, &s.CompletedAt); err != nil {
			return nil, err
		}
		s.StageName = StageName(s.StageNumber)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListStages returns the stages of one batch in stage order, or the most
// recent stages across all batches when batchID is nil.
func (r *PGRepository) ListStages(ctx context.Context, batchID *uuid.UUID) ([]Stage, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if batchID != nil {
		rows, err = r.pool.Query(ctx, stageSelect+` WHERE s.batch_id = $1 ORDER BY s.stage ASC`, *batchID)
	} else {
		rows, err = r.pool.Query(ctx, stageSelect+` ORDER BY s.created_at DESC LIMIT 200`)
	}
	if err != nil {
		return nil, fmt.Errorf("batches: list stages: %w", err)
	}
	return scanStages(rows)
}

// RecordStage upserts the stage payload and advances the batch in one
// transaction.
func (r *PGRepository) RecordStage(ctx context.Context, batchID uuid.UUID, stage int, data json.RawMessage, progress func(Status) Progress) (Stage, Batch, error) {
	var (
		saved Stage
		batch Batch
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := getBatch(ctx, tx, batchID, true)
		if err != nil {
			return err
		}
		saved, err = upsertStage(ctx, tx, batchID, stage, data)
		if err != nil {
			return err
		}
		saved.BatchCode = current.BatchCode
		p := progress(current.Status)
		_, err = tx.Exec(ctx, `
UPDATE batches SET current_stage = $2, stages_completed = $3, progress_percentage = $4,
	status = $5, updated_at = NOW()
WHERE id = $1`, batchID, p.CurrentStage, p.StagesCompleted, p.Percentage, p.Status)
		if err != nil {
			return fmt.Errorf("batches: advance: %w", err)
		}
		batch, err = getBatch(ctx, tx, batchID, false)
		return err
	})
	if err != nil {
		return Stage{}, Batch{}, err
	}
	return saved, batch, nil
}

func upsertStage(ctx context.Context, q db.Querier, batchID uuid.UUID, stage int, data json.RawMessage) (Stage, error) {
	s := Stage{BatchID: batchID, StageNumber: stage, StageName: StageName(stage)}
	err := q.QueryRow(ctx, `
INSERT INTO batch_stages (id, batch_id, stage, data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (batch_id, stage) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
RETURNING id, data, updated_at`, uuid.New(), batchID, stage, data).Scan(&s.ID, &s.Data, &s.CompletedAt)
	if err != nil {
		return Stage{}, fmt.Errorf("batches: upsert stage: %w", err)
	}
	return s, nil
}

// CreateWithStage inserts a batch together with its first stage.
func (r *PGRepository) CreateWithStage(ctx context.Context, batch Batch, data json.RawMessage) (Batch, Stage, error) {
	var (
		created Batch
		stage   Stage
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertBatch(ctx, tx, batch); err != nil {
			return err
		}
		var err error
		if stage, err = upsertStage(ctx, tx, batch.ID, 1, data); err != nil {
			return err
		}
		created, err = getBatch(ctx, tx, batch.ID, false)
		return err
	})
	if err != nil {
		return Batch{}, Stage{}, err
	}
	stage.BatchCode = created.BatchCode
	return created, stage, nil
}

// ListByProductTypes returns batches of the given product types, newest first,
// along with their stage-1 records.
func (r *PGRepository) ListByProductTypes(ctx context.Context, productTypes []string) ([]Batch, []Stage, error) {
	rows, err := r.pool.Query(ctx, "SELECT"+batchColumns+batchFrom+
		` WHERE b.product_type = ANY($1) ORDER BY b.created_at DESC`, productTypes)
	if err != nil {
		return nil, nil, fmt.Errorf("batches: list by product: %w", err)
	}
	var list []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		list = append(list, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	stageRows, err := r.pool.Query(ctx, stageSelect+` WHERE s.stage = 1 AND b.product_type = ANY($1)`, productTypes)
	if err != nil {
		return nil, nil, fmt.Errorf("batches: list glove stages: %w", err)
	}
	stages, err := scanStages(stageRows)
	if err != nil {
		return nil, nil, err
	}
	return list, stages, nil
}

var _ Repository = (*PGRepository)(nil)
