package sales

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/discount"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/inventory/inventorytest"
	"github.com/paintstock/paintstock/internal/shared"
)

// memoryRepo stores sales next to an in-memory ledger; both roll back together.
type memoryRepo struct {
	ledger *inventorytest.Ledger

	mu        sync.Mutex
	sales     map[uuid.UUID]Sale
	order     []uuid.UUID
	discounts map[uuid.UUID]discount.Request
	folios    map[int64]int64
}

func newMemoryRepo(ledger *inventorytest.Ledger) *memoryRepo {
	return &memoryRepo{
		ledger:    ledger,
		sales:     map[uuid.UUID]Sale{},
		discounts: map[uuid.UUID]discount.Request{},
		folios:    map[int64]int64{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.ledger.Atomic(func(inv inventory.TxRepository) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		sales := maps.Clone(r.sales)
		order := len(r.order)
		discounts := maps.Clone(r.discounts)
		folios := maps.Clone(r.folios)
		r.mu.Unlock()

		err := fn(ctx, &memoryTx{TxRepository: inv, repo: r})
		if err != nil {
			r.mu.Lock()
			r.sales, r.order, r.discounts, r.folios = sales, r.order[:order], discounts, folios
			r.mu.Unlock()
		}
		return err
	})
}

func (r *memoryRepo) GetSale(_ context.Context, id uuid.UUID) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, shared.NotFound("sales: sale %s", id)
	}
	return sale, nil
}

func (r *memoryRepo) ListSales(_ context.Context, filter SaleFilter) ([]Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sale
	for i := len(r.order) - 1; i >= 0; i-- {
		sale := r.sales[r.order[i]]
		if filter.BranchID != 0 && sale.BranchID != filter.BranchID {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && sale.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, sale)
		if len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) AttachClient(_ context.Context, saleID uuid.UUID, clientID int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[saleID]
	if !ok {
		return Sale{}, shared.NotFound("sales: sale %s", saleID)
	}
	if sale.ClientID != 0 && sale.ClientID != clientID {
		return Sale{}, shared.Conflict("sales: sale %s already belongs to client %d", saleID, sale.ClientID)
	}
	sale.ClientID = clientID
	r.sales[saleID] = sale
	return sale, nil
}

func (r *memoryRepo) addDiscount(req discount.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discounts[req.ID] = req
}

func (r *memoryRepo) discountByID(id uuid.UUID) discount.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discounts[id]
}

type memoryTx struct {
	inventory.TxRepository
	repo *memoryRepo
}

func (t *memoryTx) FindByIdempotencyKey(_ context.Context, key string) (Sale, bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, sale := range t.repo.sales {
		if sale.IdempotencyKey == key {
			return sale, true, nil
		}
	}
	return Sale{}, false, nil
}

func (t *memoryTx) NextFolio(_ context.Context, branchID int64) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.folios[branchID]++
	return t.repo.folios[branchID], nil
}

func (t *memoryTx) ConsumeDiscount(_ context.Context, id uuid.UUID, branchID int64, saleID uuid.UUID) (discount.Request, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	req, ok := t.repo.discounts[id]
	if !ok {
		return discount.Request{}, shared.NotFound("discount: request %s", id)
	}
	if err := discount.Applicable(req, branchID); err != nil {
		return discount.Request{}, err
	}
	req.AppliedSaleID = &saleID
	t.repo.discounts[id] = req
	return req, nil
}

func (t *memoryTx) InsertSale(_ context.Context, sale Sale) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, existing := range t.repo.sales {
		if sale.IdempotencyKey != "" && existing.IdempotencyKey == sale.IdempotencyKey {
			return shared.ErrIdempotencyConflict
		}
		if existing.BranchID == sale.BranchID && existing.Folio == sale.Folio {
			return shared.Conflict("sales: duplicate folio %d", sale.Folio)
		}
	}
	t.repo.sales[sale.ID] = sale
	t.repo.order = append(t.repo.order, sale.ID)
	return nil
}

// discountStore exposes the shared discount map as a discount.RepositoryPort.
type discountStore struct {
	repo *memoryRepo
}

func (d discountStore) Insert(_ context.Context, req discount.Request) error {
	d.repo.addDiscount(req)
	return nil
}

func (d discountStore) Get(_ context.Context, id uuid.UUID) (discount.Request, error) {
	d.repo.mu.Lock()
	defer d.repo.mu.Unlock()
	req, ok := d.repo.discounts[id]
	if !ok {
		return discount.Request{}, shared.NotFound("discount: request %s", id)
	}
	return req, nil
}

func (d discountStore) Resolve(_ context.Context, id uuid.UUID, status discount.Status, resolverID int64, at time.Time) (discount.Request, error) {
	d.repo.mu.Lock()
	defer d.repo.mu.Unlock()
	req, ok := d.repo.discounts[id]
	if !ok {
		return discount.Request{}, shared.NotFound("discount: request %s", id)
	}
	if req.Status != discount.StatusPending {
		return discount.Request{}, shared.Conflict("discount: request %s already %s", id, req.Status)
	}
	req.Status, req.ResolvedBy, req.ResolvedAt = status, resolverID, &at
	d.repo.discounts[id] = req
	return req, nil
}

func (d discountStore) ListPending(_ context.Context, branchID int64) ([]discount.Request, error) {
	d.repo.mu.Lock()
	defer d.repo.mu.Unlock()
	var out []discount.Request
	for _, req := range d.repo.discounts {
		if req.Status == discount.StatusPending && (branchID == 0 || req.BranchID == branchID) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
