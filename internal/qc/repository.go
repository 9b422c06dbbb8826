package qc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diptrack/diptrack/internal/platform/db"
	"github.com/diptrack/diptrack/internal/platform/httpx"
)

// Repository persists QC results.
type Repository interface {
	List(ctx context.Context, batchID *uuid.UUID) ([]Result, error)
	Create(ctx context.Context, result Result) (Result, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const resultSelect = `
SELECT q.id, q.batch_id, b.batch_code, q.test_type, q.result, q.passed, q.notes,
       q.tested_by, COALESCE(u.full_name, ''), q.tested_at
FROM qc_results q
JOIN batches b ON b.id = q.batch_id
LEFT JOIN users u ON u.id = q.tested_by`

// List returns results newest first, optionally for one batch.
func (r *PGRepository) List(ctx context.Context, batchID *uuid.UUID) ([]Result, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if batchID != nil {
		rows, err = r.pool.Query(ctx, resultSelect+` WHERE q.batch_id = $1 ORDER BY q.tested_at DESC`, *batchID)
	} else {
		rows, err = r.pool.Query(ctx, resultSelect+` ORDER BY q.tested_at DESC LIMIT 200`)
	}
	if err != nil {
		return nil, fmt.Errorf("qc: list: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.BatchID, &res.BatchCode, &res.TestType, &res.Result, &res.Passed,
			&res.Notes, &res.TestedBy, &res.TesterName, &res.TestedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Create inserts a result. A missing batch surfaces as ErrNotFound.
func (r *PGRepository) Create(ctx context.Context, res Result) (Result, error) {
	err := r.pool.QueryRow(ctx, `
WITH inserted AS (
	INSERT INTO qc_results (id, batch_id, test_type, result, passed, notes, tested_by, tested_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING batch_id
)
SELECT b.batch_code FROM inserted JOIN batches b ON b.id = inserted.batch_id`,
		res.ID, res.BatchID, res.TestType, res.Result, res.Passed, res.Notes, res.TestedBy, res.TestedAt,
	).Scan(&res.BatchCode)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Result{}, fmt.Errorf("batch %s: %w", res.BatchID, httpx.ErrNotFound)
		}
		return Result{}, fmt.Errorf("qc: insert: %w", err)
	}
	return res, nil
}

var _ Repository = (*PGRepository)(nil)
