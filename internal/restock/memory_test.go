package restock

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/folio"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/inventory/inventorytest"
	"github.com/paintstock/paintstock/internal/shared"
)

// memoryRepo keeps orders next to an in-memory ledger; both roll back together.
type memoryRepo struct {
	ledger *inventorytest.Ledger
	folios *folio.Memory

	mu      sync.Mutex
	orders  map[uuid.UUID]Order
	results map[string][]byte
	nextID  int64
	// failLine makes UpdateLine fail for the given line id.
	failLine map[int64]error
}

func newMemoryRepo(ledger *inventorytest.Ledger) *memoryRepo {
	return &memoryRepo{
		ledger:   ledger,
		folios:   folio.NewMemory(),
		orders:   map[uuid.UUID]Order{},
		results:  map[string][]byte{},
		failLine: map[int64]error{},
	}
}

func cloneOrder(o Order) Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.ledger.Atomic(func(inv inventory.TxRepository) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		orders := make(map[uuid.UUID]Order, len(r.orders))
		for id, o := range r.orders {
			orders[id] = cloneOrder(o)
		}
		results := maps.Clone(r.results)
		nextID := r.nextID
		r.mu.Unlock()

		tx := &memoryTx{TxRepository: inv, repo: r}
		err := fn(ctx, tx)
		if err != nil {
			r.mu.Lock()
			r.orders, r.results, r.nextID = orders, results, nextID
			r.mu.Unlock()
			for _, f := range tx.folios {
				r.folios.Rewind(f.branchID, f.docType)
			}
		}
		return err
	})
}

func (r *memoryRepo) GetOrder(_ context.Context, id uuid.UUID) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, shared.NotFound("restock: order %s", id)
	}
	return cloneOrder(o), nil
}

func (r *memoryRepo) ListOrders(_ context.Context, filter ListFilter) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if filter.BranchID != 0 && o.SourceBranchID != filter.BranchID && o.DestBranchID != filter.BranchID {
			continue
		}
		if filter.Kind != "" && o.Kind != filter.Kind {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) GetEntry(ctx context.Context, productID, branchID int64) (inventory.Entry, error) {
	return r.ledger.GetEntry(ctx, productID, branchID)
}

type allocated struct {
	branchID int64
	docType  folio.DocType
}

type memoryTx struct {
	inventory.TxRepository
	repo   *memoryRepo
	folios []allocated
}

func (t *memoryTx) NextFolio(ctx context.Context, branchID int64, docType folio.DocType) (int64, error) {
	v, err := t.repo.folios.Next(ctx, branchID, docType)
	if err == nil {
		t.folios = append(t.folios, allocated{branchID, docType})
	}
	return v, err
}

func (t *memoryTx) InsertOrder(_ context.Context, order Order) (Order, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	order = cloneOrder(order)
	for i := range order.Lines {
		t.repo.nextID++
		order.Lines[i].ID = t.repo.nextID
	}
	t.repo.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return t.repo.GetOrder(ctx, id)
}

func (t *memoryTx) UpdateOrder(_ context.Context, order Order) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	stored, ok := t.repo.orders[order.ID]
	if !ok {
		return shared.NotFound("restock: order %s", order.ID)
	}
	order.Lines = stored.Lines
	t.repo.orders[order.ID] = order
	return nil
}

func (t *memoryTx) UpdateLine(_ context.Context, orderID uuid.UUID, line Line) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if err := t.repo.failLine[line.ID]; err != nil {
		return err
	}
	o, ok := t.repo.orders[orderID]
	if !ok {
		return shared.NotFound("restock: order %s", orderID)
	}
	for i := range o.Lines {
		if o.Lines[i].ID == line.ID {
			o.Lines[i] = line
			t.repo.orders[orderID] = o
			return nil
		}
	}
	return shared.NotFound("restock: line %d of order %s", line.ID, orderID)
}

func (t *memoryTx) LookupResult(_ context.Context, key string) ([]byte, bool, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	raw, ok := t.repo.results[key]
	return raw, ok, nil
}

func (t *memoryTx) SaveResult(_ context.Context, key string, result []byte) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.repo.results[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	t.repo.results[key] = result
	return nil
}
