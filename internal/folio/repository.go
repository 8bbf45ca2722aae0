package folio

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintstock/paintstock/internal/platform/db"
)

const nextSQL = `INSERT INTO folio_sequences (branch_id, doc_type, last_value, updated_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (branch_id, doc_type)
DO UPDATE SET last_value = folio_sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`

// NextTx allocates the next folio on q. When q is a transaction the allocation
// is released again if that transaction rolls back.
func NextTx(ctx context.Context, q db.Querier, branchID int64, docType DocType) (int64, error) {
	var value int64
	if err := q.QueryRow(ctx, nextSQL, branchID, string(docType)).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// Repository is the PostgreSQL Sequencer.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Next allocates in its own single-statement transaction.
func (r *Repository) Next(ctx context.Context, branchID int64, docType DocType) (int64, error) {
	return NextTx(ctx, r.pool, branchID, docType)
}

// Current returns the last allocated value, zero when nothing was allocated.
func (r *Repository) Current(ctx context.Context, branchID int64, docType DocType) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx, `SELECT last_value FROM folio_sequences WHERE branch_id=$1 AND doc_type=$2`,
		branchID, string(docType)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return value, err
}
