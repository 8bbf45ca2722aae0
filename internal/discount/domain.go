// Package discount implements the cashier to admin discount authorization channel.
package discount

import (
	"time"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/shared"
)

// Type describes how Amount is applied.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypePercentage || t == TypeFixed
}

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is a discount that needs an administrator decision.
type Request struct {
	ID            uuid.UUID  `json:"id"`
	RequesterID   int64      `json:"requester_id"`
	RequesterName string     `json:"requester_name,omitempty"`
	BranchID      int64      `json:"branch_id"`
	Amount        float64    `json:"amount"`
	Type          Type       `json:"discount_type"`
	Reason        string     `json:"reason,omitempty"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy    int64      `json:"resolved_by,omitempty"`
	AppliedSaleID *uuid.UUID `json:"applied_sale_id,omitempty"`
}

// Resolved reports whether an administrator already decided.
func (r Request) Resolved() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// RequestInput carries a new request.
type RequestInput struct {
	RequesterID   int64
	RequesterName string
	BranchID      int64
	Amount        float64
	Type          Type
	Reason        string
}

// EventKind distinguishes notifications.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventResolved EventKind = "resolved"
)

// Event is published whenever a request is created or resolved.
type Event struct {
	Kind    EventKind `json:"kind"`
	Request Request   `json:"request"`
}

// ValidateAmount checks a discount amount against its type.
func ValidateAmount(t Type, amount float64) error {
	if !t.Valid() {
		return shared.Invalid("discount: unknown type %q", t)
	}
	if amount < 0 {
		return shared.Invalid("discount: amount must not be negative")
	}
	if t == TypePercentage && amount > 100 {
		return shared.Invalid("discount: percentage must not exceed 100")
	}
	return nil
}

// Applicable reports whether req may be consumed by a sale at branchID.
func Applicable(req Request, branchID int64) error {
	if req.Status != StatusApproved {
		return shared.Conflict("discount: request %s is %s, not approved", req.ID, req.Status)
	}
	if req.AppliedSaleID != nil {
		return shared.Conflict("discount: request %s already applied to sale %s", req.ID, *req.AppliedSaleID)
	}
	if req.BranchID != branchID {
		return shared.Conflict("discount: request %s belongs to branch %d", req.ID, req.BranchID)
	}
	return nil
}
