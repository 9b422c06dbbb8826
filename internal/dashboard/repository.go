package dashboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Snapshot holds the raw counts the metrics are derived from.
type Snapshot struct {
	OpenBatches    int
	OnHoldBatches  int
	ActiveBatches  int
	MeanProgress   float64
	ActiveAlerts   int
	CriticalAlerts int
	QCTotal        int
	QCPassed       int
}

// Repository loads dashboard snapshots.
type Repository interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Snapshot aggregates batch, alert and QC counters in a single round trip.
func (r *PGRepository) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM batches WHERE status IN ('active', 'in_progress', 'on_hold')),
	(SELECT COUNT(*) FROM batches WHERE status = 'on_hold'),
	(SELECT COUNT(*) FROM batches WHERE status IN ('active', 'in_progress')),
	(SELECT COALESCE(AVG(progress_percentage), 0)::float8 FROM batches WHERE status IN ('active', 'in_progress', 'on_hold')),
	(SELECT COUNT(*) FROM alerts WHERE status = 'active'),
	(SELECT COUNT(*) FROM alerts WHERE status <> 'resolved' AND severity = 'critical'),
	(SELECT COUNT(*) FROM qc_results),
	(SELECT COUNT(*) FROM qc_results WHERE passed)`).Scan(
		&s.OpenBatches, &s.OnHoldBatches, &s.ActiveBatches, &s.MeanProgress,
		&s.ActiveAlerts, &s.CriticalAlerts, &s.QCTotal, &s.QCPassed,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("dashboard: snapshot: %w", err)
	}
	return s, nil
}

var _ Repository = (*PGRepository)(nil)
