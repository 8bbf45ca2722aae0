package restock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintstock/paintstock/internal/folio"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/platform/db"
	"github.com/paintstock/paintstock/internal/shared"
)

const idempotencyModule = "movement_orders"

const orderColumns = `id, kind, folio, COALESCE(source_branch, 0), dest_branch, status, note, COALESCE(created_by, 0),
created_at, approved_at, shipped_at, completed_at, cancelled_at`

// Repository persists movement orders in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *inventory.Repository
	idem   *shared.IdempotencyStore
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, idem *shared.IdempotencyStore) *Repository {
	return &Repository{pool: pool, ledger: inventory.NewRepository(pool), idem: idem}
}

type txRepository struct {
	inventory.TxRepository
	tx   pgx.Tx
	idem *shared.IdempotencyStore
}

// WithTx executes the callback inside a serializable transaction shared with
// the inventory ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx, idem: r.idem})
	})
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return getOrder(ctx, r.pool, id, "")
}

func (r *Repository) GetEntry(ctx context.Context, productID, branchID int64) (inventory.Entry, error) {
	return r.ledger.GetEntry(ctx, productID, branchID)
}

func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.BranchID != 0 {
		args = append(args, filter.BranchID)
		conds = append(conds, fmt.Sprintf("(source_branch = $%d OR dest_branch = $%d)", len(args), len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM movement_orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Lines, err = loadLines(ctx, r.pool, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *txRepository) NextFolio(ctx context.Context, branchID int64, docType folio.DocType) (int64, error) {
	return folio.NextTx(ctx, r.tx, branchID, docType)
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO movement_orders
(id, kind, folio, source_branch, dest_branch, status, note, created_by, created_at)
VALUES ($1,$2,$3,NULLIF($4,0),$5,$6,$7,NULLIF($8,0),$9)`,
		order.ID, string(order.Kind), order.Folio, order.SourceBranchID, order.DestBranchID,
		string(order.Status), order.Note, order.CreatedBy, order.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	for i, l := range order.Lines {
		err := r.tx.QueryRow(ctx, `INSERT INTO movement_order_lines (order_id, product_id, quantity, unit_cost, reserved)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, order.ID, l.ProductID, l.Quantity, l.UnitCost, l.Reserved).Scan(&order.Lines[i].ID)
		if err != nil {
			return Order{}, err
		}
	}
	return order, nil
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return getOrder(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepository) UpdateOrder(ctx context.Context, order Order) error {
	_, err := r.tx.Exec(ctx, `UPDATE movement_orders SET status=$2, approved_at=$3, shipped_at=$4, completed_at=$5, cancelled_at=$6
WHERE id=$1`, order.ID, string(order.Status), order.ApprovedAt, order.ShippedAt, order.CompletedAt, order.CancelledAt)
	return err
}

func (r *txRepository) UpdateLine(ctx context.Context, orderID uuid.UUID, line Line) error {
	tag, err := r.tx.Exec(ctx, `UPDATE movement_order_lines SET reserved=$3, confirmed_at=$4 WHERE id=$1 AND order_id=$2`,
		line.ID, orderID, line.Reserved, line.ConfirmedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("restock: line %d of order %s", line.ID, orderID)
	}
	return nil
}

func (r *txRepository) LookupResult(ctx context.Context, key string) ([]byte, bool, error) {
	return r.idem.Lookup(ctx, r.tx, idempotencyModule, key)
}

func (r *txRepository) SaveResult(ctx context.Context, key string, result []byte) error {
	return r.idem.Save(ctx, r.tx, idempotencyModule, key, result)
}

func getOrder(ctx context.Context, q db.Querier, id uuid.UUID, lock string) (Order, error) {
	order, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM movement_orders WHERE id=$1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.NotFound("restock: order %s", id)
	}
	if err != nil {
		return Order{}, err
	}
	order.Lines, err = loadLines(ctx, q, id)
	return order, err
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o            Order
		kind, status string
	)
	err := row.Scan(&o.ID, &kind, &o.Folio, &o.SourceBranchID, &o.DestBranchID, &status, &o.Note, &o.CreatedBy,
		&o.CreatedAt, &o.ApprovedAt, &o.ShippedAt, &o.CompletedAt, &o.CancelledAt)
	if err != nil {
		return Order{}, err
	}
	o.Kind, o.Status = Kind(kind), Status(status)
	return o, nil
}

func loadLines(ctx context.Context, q db.Querier, orderID uuid.UUID) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, product_id, quantity, unit_cost::float8, reserved, confirmed_at
FROM movement_order_lines WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &l.UnitCost, &l.Reserved, &l.ConfirmedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
