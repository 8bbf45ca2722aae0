// Package restock moves stock between branches through an approval lifecycle.
// Only arrival confirmation changes on-hand quantities.
package restock

import (
	"time"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/folio"
)

// Kind distinguishes who initiates a movement order.
type Kind string

const (
	KindRestockSheet   Kind = "restock_sheet"
	KindRestockRequest Kind = "restock_request"
	KindTransfer       Kind = "transfer"
	// KindSupplyOrder is stock bought from an outside supplier. It has no
	// source branch and its arrival only increments the destination.
	KindSupplyOrder Kind = "supply_order"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindRestockSheet || k == KindRestockRequest || k == KindTransfer || k == KindSupplyOrder
}

// External reports whether the goods come from outside the chain.
func (k Kind) External() bool {
	return k == KindSupplyOrder
}

// DocType is the folio sequence the kind numbers from.
func (k Kind) DocType() folio.DocType {
	switch k {
	case KindRestockRequest:
		return folio.DocRestockRequest
	case KindTransfer:
		return folio.DocTransfer
	case KindSupplyOrder:
		return folio.DocSupplyOrder
	}
	return folio.DocRestockSheet
}

// Status is the canonical lifecycle state shared by every kind.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusShipped, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// Action drives a transition.
type Action string

const (
	ActionApprove        Action = "approve"
	ActionShip           Action = "ship"
	ActionConfirmArrival Action = "confirm_arrival"
	ActionCancel         Action = "cancel"
	ActionReject         Action = "reject"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionShip, ActionConfirmArrival, ActionCancel, ActionReject:
		return true
	}
	return false
}

var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionApprove:        {from: []Status{StatusPending}, to: StatusApproved},
	ActionShip:           {from: []Status{StatusApproved}, to: StatusShipped},
	ActionConfirmArrival: {from: []Status{StatusShipped}, to: StatusCompleted},
	ActionCancel:         {from: []Status{StatusPending, StatusApproved, StatusShipped}, to: StatusCancelled},
	ActionReject:         {from: []Status{StatusPending, StatusApproved}, to: StatusRejected},
}

// Next returns the status action leads to from current, or false when the
// transition is not allowed.
func Next(current Status, action Action) (Status, bool) {
	t, ok := transitions[action]
	if !ok || current.Terminal() {
		return "", false
	}
	for _, from := range t.from {
		if from == current {
			return t.to, true
		}
	}
	return "", false
}

// Label renders status with the wording each kind uses on screen.
func Label(kind Kind, status Status) string {
	if kind == KindRestockRequest {
		switch status {
		case StatusPending:
			return "pending_admin"
		case StatusApproved:
			return "approved_warehouse"
		}
	}
	return string(status)
}

// Line is one product moved by an order.
type Line struct {
	ID          int64      `json:"id"`
	ProductID   int64      `json:"product_id"`
	Quantity    int64      `json:"quantity"`
	UnitCost    float64    `json:"unit_cost,omitempty"`
	Reserved    bool       `json:"reserved"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Confirmed reports whether the line already reached the destination.
func (l Line) Confirmed() bool {
	return l.ConfirmedAt != nil
}

// Order is a restock sheet, restock request or transfer.
type Order struct {
	ID             uuid.UUID  `json:"id"`
	Kind           Kind       `json:"kind"`
	Folio          int64      `json:"folio"`
	SourceBranchID int64      `json:"source_branch_id"`
	DestBranchID   int64      `json:"dest_branch_id"`
	Status         Status     `json:"status"`
	Note           string     `json:"note,omitempty"`
	CreatedBy      int64      `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	Lines          []Line     `json:"lines"`
}

// FolioBranch is the branch whose sequence numbers the order.
func (o Order) FolioBranch() int64 {
	if o.Kind == KindTransfer {
		return o.SourceBranchID
	}
	return o.DestBranchID
}

// TotalAmount sums quantity times unit cost over every line.
func (o Order) TotalAmount() float64 {
	var total float64
	for _, l := range o.Lines {
		total += float64(l.Quantity) * l.UnitCost
	}
	return total
}

// AnyConfirmed reports whether some line already reached the destination.
func (o Order) AnyConfirmed() bool {
	for _, l := range o.Lines {
		if l.Confirmed() {
			return true
		}
	}
	return false
}

// Pending lists lines not yet confirmed.
func (o Order) Pending() []Line {
	var out []Line
	for _, l := range o.Lines {
		if !l.Confirmed() {
			out = append(out, l)
		}
	}
	return out
}

// LineInput is a requested line.
type LineInput struct {
	ProductID int64
	Quantity  int64
	UnitCost  float64
}

// CreateInput opens a new order. A zero SourceBranchID picks the default warehouse,
// except for supply orders, which never have one.
type CreateInput struct {
	Kind           Kind
	SourceBranchID int64
	DestBranchID   int64
	Items          []LineInput
	Note           string
	ActorID        int64
}

// AdvanceInput requests one transition.
type AdvanceInput struct {
	OrderID        uuid.UUID
	Action         Action
	ActorID        int64
	IdempotencyKey string
}

// LineOutcome reports what happened to a line during arrival confirmation.
type LineOutcome string

const (
	OutcomeConfirmed         LineOutcome = "confirmed"
	OutcomeAlreadyConfirmed  LineOutcome = "already_confirmed"
	OutcomeInsufficientStock LineOutcome = "insufficient_stock"
	OutcomeError             LineOutcome = "error"
)

// LineResult carries the per-line outcome and the quantities left behind.
type LineResult struct {
	LineID         int64       `json:"line_id"`
	ProductID      int64       `json:"product_id"`
	Quantity       int64       `json:"quantity"`
	Outcome        LineOutcome `json:"outcome"`
	SourceQuantity int64       `json:"source_quantity"`
	DestQuantity   int64       `json:"dest_quantity"`
	Error          string      `json:"error,omitempty"`
}

// AdvanceResult is returned from every transition.
type AdvanceResult struct {
	Order    Order        `json:"order"`
	Lines    []LineResult `json:"lines,omitempty"`
	Replayed bool         `json:"replayed"`
}

// ListFilter narrows order listings. BranchID matches either end.
type ListFilter struct {
	BranchID int64
	Kind     Kind
	Statuses []Status
	Limit    int
}
