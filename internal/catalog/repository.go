package catalog

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintstock/paintstock/internal/shared"
)

// Repository reads catalog rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, name, category, brand, price::float8, wholesale_price::float8, wholesale_min_qty,
cost_price::float8, min_stock, max_stock, unit_measure`

func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.NotFound("catalog: product %d", id)
		}
		return Product{}, shared.Persistence(err)
	}
	return p, nil
}

func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	result := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, shared.Persistence(err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence(err)
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, shared.NotFound("catalog: product %d", id)
		}
	}
	return result, nil
}

func (r *Repository) GetBranch(ctx context.Context, id int64) (Branch, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, branch_type, status, features, created_at FROM branches WHERE id=$1`, id)
	b, err := scanBranch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, shared.NotFound("catalog: branch %d", id)
		}
		return Branch{}, shared.Persistence(err)
	}
	return b, nil
}

// DefaultWarehouse returns the oldest active warehouse.
func (r *Repository) DefaultWarehouse(ctx context.Context) (Branch, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, branch_type, status, features, created_at FROM branches
WHERE branch_type='warehouse' AND status='active' ORDER BY created_at ASC, id ASC LIMIT 1`)
	b, err := scanBranch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, shared.NotFound("catalog: no active warehouse")
		}
		return Branch{}, shared.Persistence(err)
	}
	return b, nil
}

// ListActiveBranches returns every active branch, used by background scans.
func (r *Repository) ListActiveBranches(ctx context.Context) ([]Branch, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, branch_type, status, features, created_at FROM branches WHERE status='active' ORDER BY id`)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	defer rows.Close()
	var branches []Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, shared.Persistence(err)
		}
		branches = append(branches, b)
	}
	return branches, shared.Persistence(rows.Err())
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Brand, &p.Price, &p.WholesalePrice, &p.WholesaleMinQty,
		&p.CostPrice, &p.MinStock, &p.MaxStock, &p.UnitMeasure)
	return p, err
}

func scanBranch(row pgx.Row) (Branch, error) {
	var (
		b        Branch
		features []byte
		kind     string
		status   string
	)
	if err := row.Scan(&b.ID, &b.Name, &kind, &status, &features, &b.CreatedAt); err != nil {
		return Branch{}, err
	}
	b.Type = BranchType(kind)
	b.Status = BranchStatus(status)
	if len(features) > 0 {
		if err := json.Unmarshal(features, &b.Features); err != nil {
			return Branch{}, err
		}
	}
	return b, nil
}
