package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/paintstock/paintstock/internal/shared"
)

// TxRepository exposes the row-level operations a ledger transaction needs.
// GetEntryForUpdate must lock the row until the transaction ends and return a
// zero entry when none exists yet.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, productID, branchID int64) (Entry, error)
	SaveEntry(ctx context.Context, entry Entry) error
	InsertMovement(ctx context.Context, movement Movement) error
}

// ApplyDelta adds m.Quantity (signed) to the entry. A decrement may not dip into
// reserved stock and never drives the quantity below zero.
func ApplyDelta(ctx context.Context, tx TxRepository, m Mutation) (Entry, error) {
	if m.Quantity == 0 {
		return Entry{}, shared.Invalid("inventory: delta must be non zero")
	}
	return mutate(ctx, tx, m, m.Quantity, 0)
}

// Reserve earmarks available stock so that sales cannot consume it.
func Reserve(ctx context.Context, tx TxRepository, m Mutation) (Entry, error) {
	if m.Quantity <= 0 {
		return Entry{}, shared.Invalid("inventory: reserve quantity must be positive")
	}
	m.Reason = ReasonReserve
	return mutate(ctx, tx, m, 0, m.Quantity)
}

// Release returns up to m.Quantity reserved units to available stock.
func Release(ctx context.Context, tx TxRepository, m Mutation) (Entry, error) {
	if m.Quantity <= 0 {
		return Entry{}, shared.Invalid("inventory: release quantity must be positive")
	}
	entry, err := tx.GetEntryForUpdate(ctx, m.ProductID, m.BranchID)
	if err != nil {
		return Entry{}, err
	}
	release := min(m.Quantity, entry.Reserved)
	if release == 0 {
		return entry, nil
	}
	m.Reason = ReasonRelease
	return mutate(ctx, tx, m, 0, -release)
}

// ConsumeReserved removes m.Quantity units that were earlier reserved. Units
// missing from the reservation are taken from available stock.
func ConsumeReserved(ctx context.Context, tx TxRepository, m Mutation) (Entry, error) {
	if m.Quantity <= 0 {
		return Entry{}, shared.Invalid("inventory: quantity must be positive")
	}
	entry, err := tx.GetEntryForUpdate(ctx, m.ProductID, m.BranchID)
	if err != nil {
		return Entry{}, err
	}
	return mutate(ctx, tx, m, -m.Quantity, -min(m.Quantity, entry.Reserved))
}

// Key identifies one ledger entry.
type Key struct {
	ProductID int64
	BranchID  int64
}

// LockKeys takes row locks in (branch, product) order so concurrent transactions
// touching overlapping entries cannot deadlock.
func LockKeys(ctx context.Context, tx TxRepository, keys ...Key) error {
	sorted := append([]Key(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].BranchID != sorted[j].BranchID {
			return sorted[i].BranchID < sorted[j].BranchID
		}
		return sorted[i].ProductID < sorted[j].ProductID
	})
	for i, k := range sorted {
		if i > 0 && k == sorted[i-1] {
			continue
		}
		if _, err := tx.GetEntryForUpdate(ctx, k.ProductID, k.BranchID); err != nil {
			return err
		}
	}
	return nil
}

// LockEntries locks one product at several branches.
func LockEntries(ctx context.Context, tx TxRepository, productID int64, branchIDs ...int64) error {
	keys := make([]Key, len(branchIDs))
	for i, b := range branchIDs {
		keys[i] = Key{ProductID: productID, BranchID: b}
	}
	return LockKeys(ctx, tx, keys...)
}

func mutate(ctx context.Context, tx TxRepository, m Mutation, qtyDelta, reservedDelta int64) (Entry, error) {
	if m.ProductID == 0 || m.BranchID == 0 {
		return Entry{}, shared.Invalid("inventory: product and branch required")
	}
	if !m.Reason.Valid() {
		return Entry{}, shared.Invalid("inventory: unknown reason %q", m.Reason)
	}
	entry, err := tx.GetEntryForUpdate(ctx, m.ProductID, m.BranchID)
	if err != nil {
		return Entry{}, err
	}
	newQty := entry.Quantity + qtyDelta
	newReserved := entry.Reserved + reservedDelta
	if newReserved < 0 {
		newReserved = 0
	}
	if newQty < 0 || newQty < newReserved {
		requested := -qtyDelta
		if requested <= 0 {
			requested = reservedDelta
		}
		return Entry{}, &shared.InsufficientStockError{
			ProductID: m.ProductID,
			BranchID:  m.BranchID,
			Requested: requested,
			Available: entry.Available(),
		}
	}
	now := time.Now().UTC()
	entry.Quantity = newQty
	entry.Reserved = newReserved
	entry.UpdatedAt = now
	if err := tx.SaveEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	movement := Movement{
		ProductID:     m.ProductID,
		BranchID:      m.BranchID,
		Delta:         qtyDelta,
		ReservedDelta: reservedDelta,
		Balance:       newQty,
		Reason:        m.Reason,
		RefID:         m.RefID,
		Note:          m.Note,
		UnitCost:      m.UnitCost,
		ActorID:       m.ActorID,
		CreatedAt:     now,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
