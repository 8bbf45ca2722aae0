package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintstock/paintstock/internal/discount"
	"github.com/paintstock/paintstock/internal/folio"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/platform/db"
	"github.com/paintstock/paintstock/internal/shared"
)

const saleColumns = `id, branch_id, folio, COALESCE(client_id, 0), COALESCE(cashier_id, 0), subtotal::float8,
discount_amount::float8, tax_amount::float8, total::float8, payment_method, payment_type, is_wholesale,
discount_request_id, COALESCE(idempotency_key, ''), created_at`

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside a serializable transaction shared with
// the inventory ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	sale, err := getSale(ctx, r.pool, `WHERE id=$1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, shared.NotFound("sales: sale %s", id)
	}
	return sale, err
}

func (r *Repository) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error) {
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
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var (
		sales []Sale
		ids   []uuid.UUID
	)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

// AttachClient sets client_id unless a different client is already attached.
func (r *Repository) AttachClient(ctx context.Context, saleID uuid.UUID, clientID int64) (Sale, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET client_id=$2 WHERE id=$1 AND (client_id IS NULL OR client_id=$2)`, saleID, clientID)
	if err != nil {
		return Sale{}, err
	}
	sale, err := r.GetSale(ctx, saleID)
	if err != nil {
		return Sale{}, err
	}
	if tag.RowsAffected() == 0 {
		return Sale{}, shared.Conflict("sales: sale %s already belongs to client %d", saleID, sale.ClientID)
	}
	return sale, nil
}

func (r *txRepository) FindByIdempotencyKey(ctx context.Context, key string) (Sale, bool, error) {
	sale, err := getSale(ctx, r.tx, `WHERE idempotency_key=$1`, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, false, nil
	}
	if err != nil {
		return Sale{}, false, err
	}
	return sale, true, nil
}

func (r *txRepository) NextFolio(ctx context.Context, branchID int64) (int64, error) {
	return folio.NextTx(ctx, r.tx, branchID, folio.DocSale)
}

func (r *txRepository) ConsumeDiscount(ctx context.Context, id uuid.UUID, branchID int64, saleID uuid.UUID) (discount.Request, error) {
	return discount.ConsumeTx(ctx, r.tx, id, branchID, saleID)
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) error {
	var key *string
	if sale.IdempotencyKey != "" {
		key = &sale.IdempotencyKey
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO sales
(id, branch_id, folio, client_id, cashier_id, subtotal, discount_amount, tax_amount, total,
 payment_method, payment_type, is_wholesale, discount_request_id, idempotency_key, created_at)
VALUES ($1,$2,$3,NULLIF($4,0),NULLIF($5,0),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		sale.ID, sale.BranchID, sale.Folio, sale.ClientID, sale.CashierID, sale.Subtotal, sale.DiscountAmount,
		sale.TaxAmount, sale.Total, string(sale.PaymentMethod), string(sale.PaymentType), sale.IsWholesale,
		sale.DiscountRequestID, key, sale.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) && key != nil {
			return shared.ErrIdempotencyConflict
		}
		return err
	}
	batch := &pgx.Batch{}
	for i, it := range sale.Items {
		batch.Queue(`INSERT INTO sale_items (sale_id, line_no, product_id, product_name, quantity, unit_price, line_total, wholesale)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, sale.ID, i+1, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.LineTotal, it.Wholesale)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func getSale(ctx context.Context, q db.Querier, where string, arg any) (Sale, error) {
	sale, err := scanSale(q.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales `+where, arg))
	if err != nil {
		return Sale{}, err
	}
	items, err := loadItems(ctx, q, []uuid.UUID{sale.ID})
	if err != nil {
		return Sale{}, err
	}
	sale.Items = items[sale.ID]
	return sale, nil
}

func loadItems(ctx context.Context, q db.Querier, ids []uuid.UUID) (map[uuid.UUID][]Item, error) {
	rows, err := q.Query(ctx, `SELECT sale_id, product_id, product_name, quantity, unit_price::float8, line_total::float8, wholesale
FROM sale_items WHERE sale_id = ANY($1::uuid[]) ORDER BY sale_id, line_no`, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]Item, len(ids))
	for rows.Next() {
		var (
			saleID uuid.UUID
			it     Item
		)
		if err := rows.Scan(&saleID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.LineTotal, &it.Wholesale); err != nil {
			return nil, err
		}
		out[saleID] = append(out[saleID], it)
	}
	return out, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var (
		sale    Sale
		method  string
		payType string
	)
	err := row.Scan(&sale.ID, &sale.BranchID, &sale.Folio, &sale.ClientID, &sale.CashierID, &sale.Subtotal,
		&sale.DiscountAmount, &sale.TaxAmount, &sale.Total, &method, &payType, &sale.IsWholesale,
		&sale.DiscountRequestID, &sale.IdempotencyKey, &sale.CreatedAt)
	if err != nil {
		return Sale{}, err
	}
	sale.PaymentMethod = PaymentMethod(method)
	sale.PaymentType = PaymentType(payType)
	return sale, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
