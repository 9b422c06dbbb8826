package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/diptrack/diptrack/internal/platform/db"
	"github.com/diptrack/diptrack/internal/platform/httpx"
)

// IdempotencyHeader carries the client supplied key on create requests.
const IdempotencyHeader = "Idempotency-Key"

// maxIdempotencyKeyLen matches the column width in idempotency_keys.
const maxIdempotencyKeyLen = 128

// ErrIdempotencyConflict indicates the key was already claimed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyGuard claims and releases request keys per module.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Execer is the statement runner the store needs; *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IdempotencyStore records claimed keys in Postgres.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(conn Execer) *IdempotencyStore {
	return &IdempotencyStore{db: conn, now: time.Now}
}

// ValidateIdempotencyKey rejects keys that are empty, too long or contain
// control or whitespace characters.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return fmt.Errorf("idempotency key required: %w", httpx.ErrValidation)
	}
	if len(key) > maxIdempotencyKeyLen {
		return fmt.Errorf("idempotency key longer than %d bytes: %w", maxIdempotencyKeyLen, httpx.ErrValidation)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("idempotency key contains invalid characters: %w", httpx.ErrValidation)
		}
	}
	return nil
}

// CheckAndInsert claims key for module. A key that was already claimed,
// by any module, yields ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := ValidateIdempotencyKey(key); err != nil {
		return err
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`, key, module, s.now().UTC())
	switch {
	case db.IsUniqueViolation(err):
		return ErrIdempotencyConflict
	case err != nil:
		return fmt.Errorf("claim idempotency key: %w", err)
	case tag.RowsAffected() == 0:
		return ErrIdempotencyConflict
	}
	return nil
}

// Cleanup removes keys claimed before olderThan ago and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan).UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete releases a key so a failed request can be retried with it.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// IdempotencyKey reads the trimmed Idempotency-Key header.
func IdempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}
