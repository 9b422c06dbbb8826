package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Timeline implements Repository. To is inclusive of the whole day.
func (r *PGRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !q.From.IsZero() {
		add("a.occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("a.occurred_at < $%d", q.To.Add(24*time.Hour))
	}
	if q.Actor != "" {
		add("(u.email ILIKE '%%' || $%d || '%%')", q.Actor)
	}
	if q.Entity != "" {
		add("a.entity = $%d", q.Entity)
	}
	if q.Action != "" {
		add("a.action = $%d", q.Action)
	}

	var sb strings.Builder
	sb.WriteString(`
SELECT a.id, a.occurred_at, COALESCE(a.actor_id, 0), COALESCE(u.email, 'system'),
       a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY a.occurred_at DESC, a.id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta %d: %w", row.ID, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
