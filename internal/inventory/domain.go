package inventory

import (
	"time"
)

// Reason attributes a ledger mutation to its cause.
type Reason string

const (
	ReasonSale        Reason = "sale"
	ReasonRestock     Reason = "restock"
	ReasonTransfer    Reason = "transfer"
	ReasonConsumption Reason = "consumption"
	ReasonStockTake   Reason = "stock_take"
	ReasonManual      Reason = "manual"
	ReasonReserve     Reason = "reserve"
	ReasonRelease     Reason = "release"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonSale, ReasonRestock, ReasonTransfer, ReasonConsumption, ReasonStockTake, ReasonManual, ReasonReserve, ReasonRelease:
		return true
	}
	return false
}

// Entry is the stock held for one product at one branch.
// Invariant: 0 <= Reserved <= Quantity.
type Entry struct {
	ProductID int64     `json:"product_id"`
	BranchID  int64     `json:"branch_id"`
	Quantity  int64     `json:"quantity"`
	Reserved  int64     `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available is the quantity that sales and transfers may consume.
func (e Entry) Available() int64 {
	return e.Quantity - e.Reserved
}

// Movement records one committed ledger mutation.
type Movement struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	BranchID      int64     `json:"branch_id"`
	Delta         int64     `json:"delta"`
	ReservedDelta int64     `json:"reserved_delta"`
	Balance       int64     `json:"balance"`
	Reason        Reason    `json:"reason"`
	RefID         string    `json:"ref_id,omitempty"`
	Note          string    `json:"note,omitempty"`
	UnitCost      float64   `json:"unit_cost,omitempty"`
	ActorID       int64     `json:"actor_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Mutation describes a change applied inside a caller's transaction.
type Mutation struct {
	ProductID int64
	BranchID  int64
	Quantity  int64
	Reason    Reason
	RefID     string
	Note      string
	UnitCost  float64
	ActorID   int64
}

// AdjustInput applies a signed delta.
type AdjustInput struct {
	ProductID int64
	BranchID  int64
	Delta     int64
	Reason    Reason
	RefID     string
	Note      string
	ActorID   int64
}

// SetInput overwrites a quantity after a physical count.
type SetInput struct {
	ProductID int64
	BranchID  int64
	Quantity  int64
	Note      string
	ActorID   int64
}

// TransferInput moves stock between branches.
type TransferInput struct {
	ProductID    int64
	FromBranchID int64
	ToBranchID   int64
	Quantity     int64
	RefID        string
	Note         string
	ActorID      int64
}

// ConsumptionInput records stock used by the branch itself.
type ConsumptionInput struct {
	ProductID int64
	BranchID  int64
	UserID    int64
	Quantity  int64
	Reason    string
}

// HistoryFilter filters movements.
type HistoryFilter struct {
	BranchID  int64
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}
