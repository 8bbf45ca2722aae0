package discount

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintstock/paintstock/internal/platform/db"
	"github.com/paintstock/paintstock/internal/shared"
)

const requestColumns = `id, requester_id, requester_name, branch_id, amount::float8, discount_type, reason, status,
created_at, resolved_at, COALESCE(resolved_by, 0), applied_sale_id`

// Repository persists discount requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, req Request) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO discount_requests
(id, requester_id, requester_name, branch_id, amount, discount_type, reason, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.ID, req.RequesterID, req.RequesterName, req.BranchID, req.Amount, string(req.Type), req.Reason, string(req.Status), req.CreatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	return GetTx(ctx, r.pool, id)
}

// Resolve moves a pending request to status. Only one caller can win; the
// rest observe a conflict.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, status Status, resolverID int64, at time.Time) (Request, error) {
	row := r.pool.QueryRow(ctx, `UPDATE discount_requests SET status=$2, resolved_by=NULLIF($3,0), resolved_at=$4
WHERE id=$1 AND status='pending' RETURNING `+requestColumns, id, string(status), resolverID, at)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return Request{}, getErr
		}
		return Request{}, shared.Conflict("discount: request %s already %s", id, current.Status)
	}
	return req, err
}

func (r *Repository) ListPending(ctx context.Context, branchID int64) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM discount_requests
WHERE status='pending' AND ($1 = 0 OR branch_id = $1) ORDER BY created_at`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// GetTx reads a request on q.
func GetTx(ctx context.Context, q db.Querier, id uuid.UUID) (Request, error) {
	req, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM discount_requests WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, shared.NotFound("discount: request %s", id)
	}
	return req, err
}

// ConsumeTx marks an approved request as applied to saleID inside the caller's
// transaction and returns it. The row is locked so concurrent sales cannot both
// apply it.
func ConsumeTx(ctx context.Context, q db.Querier, id uuid.UUID, branchID int64, saleID uuid.UUID) (Request, error) {
	req, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM discount_requests WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, shared.NotFound("discount: request %s", id)
	}
	if err != nil {
		return Request{}, err
	}
	if err := Applicable(req, branchID); err != nil {
		return Request{}, err
	}
	if _, err := q.Exec(ctx, `UPDATE discount_requests SET applied_sale_id=$2 WHERE id=$1`, id, saleID); err != nil {
		return Request{}, err
	}
	req.AppliedSaleID = &saleID
	return req, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req     Request
		typ     string
		status  string
		applied *uuid.UUID
	)
	err := row.Scan(&req.ID, &req.RequesterID, &req.RequesterName, &req.BranchID, &req.Amount, &typ, &req.Reason, &status,
		&req.CreatedAt, &req.ResolvedAt, &req.ResolvedBy, &applied)
	if err != nil {
		return Request{}, err
	}
	req.Type = Type(typ)
	req.Status = Status(status)
	req.AppliedSaleID = applied
	return req, nil
}
