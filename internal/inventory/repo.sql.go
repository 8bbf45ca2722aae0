package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintstock/paintstock/internal/platform/db"
)

// ErrRepositoryNotInitialised is returned by a nil Repository.
var ErrRepositoryNotInitialised = errors.New("inventory repository not initialised")

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds ledger operations to an open transaction so other
// modules can mutate stock inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return ErrRepositoryNotInitialised
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// GetEntry reads an entry without locking. A missing row is a zero entry.
func (r *Repository) GetEntry(ctx context.Context, productID, branchID int64) (Entry, error) {
	if r == nil {
		return Entry{}, ErrRepositoryNotInitialised
	}
	entry := Entry{ProductID: productID, BranchID: branchID}
	err := r.pool.QueryRow(ctx, `SELECT quantity, reserved, updated_at FROM inventory_entries
WHERE product_id=$1 AND branch_id=$2`, productID, branchID).Scan(&entry.Quantity, &entry.Reserved, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entry, nil
	}
	return entry, err
}

// ListBranch returns every entry recorded for the branch ordered by product.
func (r *Repository) ListBranch(ctx context.Context, branchID int64) ([]Entry, error) {
	if r == nil {
		return nil, ErrRepositoryNotInitialised
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, branch_id, quantity, reserved, updated_at
FROM inventory_entries WHERE branch_id=$1 ORDER BY product_id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ProductID, &e.BranchID, &e.Quantity, &e.Reserved, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// History lists movements matching the filter, newest first.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Movement, error) {
	if r == nil {
		return nil, ErrRepositoryNotInitialised
	}
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.BranchID != 0 {
		add("branch_id = $%d", filter.BranchID)
	}
	if filter.ProductID != 0 {
		add("product_id = $%d", filter.ProductID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	query := `SELECT id, product_id, branch_id, delta, reserved_delta, balance, reason, ref_id, note,
unit_cost::float8, COALESCE(actor_id, 0), created_at FROM inventory_movements`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.BranchID, &m.Delta, &m.ReservedDelta, &m.Balance,
			&m.Reason, &m.RefID, &m.Note, &m.UnitCost, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, productID, branchID int64) (Entry, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_entries (product_id, branch_id) VALUES ($1, $2)
ON CONFLICT (product_id, branch_id) DO NOTHING`, productID, branchID); err != nil {
		return Entry{}, err
	}
	entry := Entry{ProductID: productID, BranchID: branchID}
	err := r.tx.QueryRow(ctx, `SELECT quantity, reserved, updated_at FROM inventory_entries
WHERE product_id=$1 AND branch_id=$2 FOR UPDATE`, productID, branchID).Scan(&entry.Quantity, &entry.Reserved, &entry.UpdatedAt)
	return entry, err
}

func (r *txRepository) SaveEntry(ctx context.Context, entry Entry) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_entries SET quantity=$3, reserved=$4, updated_at=$5
WHERE product_id=$1 AND branch_id=$2`, entry.ProductID, entry.BranchID, entry.Quantity, entry.Reserved, entry.UpdatedAt)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_movements
(product_id, branch_id, delta, reserved_delta, balance, reason, ref_id, note, unit_cost, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,0),$11)`,
		m.ProductID, m.BranchID, m.Delta, m.ReservedDelta, m.Balance, string(m.Reason), m.RefID, m.Note, m.UnitCost, m.ActorID, m.CreatedAt)
	return err
}
