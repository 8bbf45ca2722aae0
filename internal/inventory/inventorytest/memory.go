// Package inventorytest provides an in-memory ledger for tests.
package inventorytest

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/paintstock/paintstock/internal/inventory"
)

// Ledger implements inventory.RepositoryPort on maps. Transactions are fully
// serialized and their effects are discarded when the callback fails.
type Ledger struct {
	mu        sync.Mutex
	entries   map[inventory.Key]inventory.Entry
	movements []inventory.Movement
	nextID    int64
	failNext  error
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: map[inventory.Key]inventory.Entry{}}
}

// Set seeds an on-hand quantity.
func (l *Ledger) Set(productID, branchID, quantity int64) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := inventory.Key{ProductID: productID, BranchID: branchID}
	e := l.entries[k]
	e.ProductID, e.BranchID, e.Quantity = productID, branchID, quantity
	l.entries[k] = e
	return l
}

// Entry reads an entry outside any transaction.
func (l *Ledger) Entry(productID, branchID int64) inventory.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(productID, branchID)
}

// Quantity reads an on-hand quantity.
func (l *Ledger) Quantity(productID, branchID int64) int64 {
	return l.Entry(productID, branchID).Quantity
}

// Movements returns a copy of the movement log in insertion order.
func (l *Ledger) Movements() []inventory.Movement {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]inventory.Movement(nil), l.movements...)
}

// FailNextMovement makes the next InsertMovement return err, simulating a
// store failure mid-transaction.
func (l *Ledger) FailNextMovement(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Atomic runs fn as one transaction. Composite fakes call it to share the
// ledger's lock and rollback with their own state.
func (l *Ledger) Atomic(fn func(inventory.TxRepository) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := maps.Clone(l.entries)
	movements := len(l.movements)
	nextID := l.nextID
	if err := fn(&tx{ledger: l}); err != nil {
		l.entries = snapshot
		l.movements = l.movements[:movements]
		l.nextID = nextID
		return err
	}
	return nil
}

// WithTx implements inventory.RepositoryPort.
func (l *Ledger) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return l.Atomic(func(tx inventory.TxRepository) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

// GetEntry implements inventory.RepositoryPort.
func (l *Ledger) GetEntry(_ context.Context, productID, branchID int64) (inventory.Entry, error) {
	return l.Entry(productID, branchID), nil
}

// ListBranch implements inventory.RepositoryPort.
func (l *Ledger) ListBranch(_ context.Context, branchID int64) ([]inventory.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []inventory.Entry
	for k, e := range l.entries {
		if k.BranchID == branchID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// History implements inventory.RepositoryPort.
func (l *Ledger) History(_ context.Context, filter inventory.HistoryFilter) ([]inventory.Movement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []inventory.Movement
	for i := len(l.movements) - 1; i >= 0; i-- {
		m := l.movements[i]
		if filter.BranchID != 0 && m.BranchID != filter.BranchID {
			continue
		}
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (l *Ledger) entry(productID, branchID int64) inventory.Entry {
	if e, ok := l.entries[inventory.Key{ProductID: productID, BranchID: branchID}]; ok {
		return e
	}
	return inventory.Entry{ProductID: productID, BranchID: branchID}
}

type tx struct {
	ledger *Ledger
}

func (t *tx) GetEntryForUpdate(_ context.Context, productID, branchID int64) (inventory.Entry, error) {
	return t.ledger.entry(productID, branchID), nil
}

func (t *tx) SaveEntry(_ context.Context, entry inventory.Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	t.ledger.entries[inventory.Key{ProductID: entry.ProductID, BranchID: entry.BranchID}] = entry
	return nil
}

func (t *tx) InsertMovement(_ context.Context, m inventory.Movement) error {
	if err := t.ledger.failNext; err != nil {
		t.ledger.failNext = nil
		return err
	}
	t.ledger.nextID++
	m.ID = t.ledger.nextID
	t.ledger.movements = append(t.ledger.movements, m)
	return nil
}
