package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diptrack/diptrack/internal/platform/db"
	"github.com/diptrack/diptrack/internal/platform/httpx"
)

// Repository persists alerts.
type Repository interface {
	List(ctx context.Context, status Status) ([]Alert, error)
	Get(ctx context.Context, id uuid.UUID) (Alert, error)
	Create(ctx context.Context, alert Alert) (Alert, error)
	Update(ctx context.Context, id uuid.UUID, expected Status, input PatchInput) (Alert, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const alertSelect = `
SELECT a.id, a.title, a.description, a.severity, a.source, a.batch_id, a.status,
       a.assigned_to, COALESCE(u.full_name, ''), a.created_at, a.updated_at
FROM alerts a
LEFT JOIN users u ON u.id = a.assigned_to`

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Severity, &a.Source, &a.BatchID, &a.Status,
		&a.AssignedTo, &a.AssigneeName, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// List returns alerts newest first, optionally filtered by status.
func (r *PGRepository) List(ctx context.Context, status Status) ([]Alert, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = r.pool.Query(ctx, alertSelect+` WHERE a.status = $1 ORDER BY a.created_at DESC LIMIT 500`, status)
	} else {
		rows, err = r.pool.Query(ctx, alertSelect+` ORDER BY a.created_at DESC LIMIT 500`)
	}
	if err != nil {
		return nil, fmt.Errorf("alerts: list: %w", err)
	}
	defer rows.Close()
	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get loads one alert.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, alertSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Alert{}, fmt.Errorf("alert %s: %w", id, httpx.ErrNotFound)
		}
		return Alert{}, err
	}
	return a, nil
}

// Create inserts an alert.
func (r *PGRepository) Create(ctx context.Context, a Alert) (Alert, error) {
	_, err := r.pool.Exec(ctx, `
INSERT INTO alerts (id, title, description, severity, source, batch_id, status, assigned_to)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Title, a.Description, a.Severity, a.Source, a.BatchID, a.Status, a.AssignedTo)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Alert{}, fmt.Errorf("referenced batch or user does not exist: %w", httpx.ErrValidation)
		}
		return Alert{}, fmt.Errorf("alerts: insert: %w", err)
	}
	return r.Get(ctx, a.ID)
}

// Update applies the patch only while the alert still has the expected
// status, so concurrent transitions cannot both succeed.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, expected Status, input PatchInput) (Alert, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE alerts SET
	status = COALESCE($3, status),
	assigned_to = COALESCE($4, assigned_to),
	updated_at = NOW()
WHERE id = $1 AND status = $2`, id, expected, input.Status, input.AssignedTo)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Alert{}, fmt.Errorf("assignee does not exist: %w", httpx.ErrValidation)
		}
		return Alert{}, fmt.Errorf("alerts: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Alert{}, fmt.Errorf("alert %s changed concurrently: %w", id, httpx.ErrConflict)
	}
	return r.Get(ctx, id)
}

var _ Repository = (*PGRepository)(nil)
