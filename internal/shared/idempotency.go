package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintstock/paintstock/internal/platform/db"
)

// IdempotencyStore persists processed keys together with the first result produced for them.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Lookup returns the stored result for module/key. Pass the caller's transaction as q so the
// lookup and the effects it guards commit together.
func (s *IdempotencyStore) Lookup(ctx context.Context, q db.Querier, module, key string) ([]byte, bool, error) {
	if err := validateKey(module, key); err != nil {
		return nil, false, err
	}
	var result []byte
	err := q.QueryRow(ctx, `SELECT result FROM idempotency_keys WHERE module=$1 AND key=$2`, module, key).Scan(&result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

// Save records the result for module/key. A concurrent duplicate surfaces as ErrIdempotencyConflict.
func (s *IdempotencyStore) Save(ctx context.Context, q db.Querier, module, key string, result []byte) error {
	if err := validateKey(module, key); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `INSERT INTO idempotency_keys (key, module, result, created_at) VALUES ($1, $2, $3, $4)`, key, module, result, time.Now())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func validateKey(module, key string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	return nil
}
