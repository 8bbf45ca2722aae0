// Package catalog exposes the read-only product and branch attributes the engine consumes.
package catalog

import (
	"context"
	"time"
)

// BranchType distinguishes points of sale from warehouses.
type BranchType string

const (
	BranchTypeStore     BranchType = "store"
	BranchTypeWarehouse BranchType = "warehouse"
)

// BranchStatus toggles whether a branch may transact.
type BranchStatus string

const (
	BranchStatusActive   BranchStatus = "active"
	BranchStatusInactive BranchStatus = "inactive"
)

// Branch is the partition key for ledger and sale queries.
type Branch struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      BranchType      `json:"type"`
	Status    BranchStatus    `json:"status"`
	Features  map[string]bool `json:"features,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Active reports whether the branch accepts transactions.
func (b Branch) Active() bool {
	return b.Status == BranchStatusActive
}

// Product carries identity, pricing and reorder thresholds.
type Product struct {
	ID              int64   `json:"id"`
	SKU             string  `json:"sku"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	Brand           string  `json:"brand,omitempty"`
	Price           float64 `json:"price"`
	WholesalePrice  float64 `json:"wholesale_price,omitempty"`
	WholesaleMinQty int64   `json:"wholesale_min_qty,omitempty"`
	CostPrice       float64 `json:"cost_price,omitempty"`
	MinStock        int64   `json:"min_stock"`
	MaxStock        int64   `json:"max_stock"`
	UnitMeasure     string  `json:"unit_measure"`
}

// HasWholesaleTier reports whether both wholesale terms are configured.
func (p Product) HasWholesaleTier() bool {
	return p.WholesalePrice > 0 && p.WholesaleMinQty > 0
}

// UnitPrice resolves the per-unit price for a line of qty units.
// The wholesale tier applies when qty meets the configured minimum.
func (p Product) UnitPrice(qty int64) (price float64, wholesale bool) {
	if p.HasWholesaleTier() && qty >= p.WholesaleMinQty {
		return p.WholesalePrice, true
	}
	return p.Price, false
}

// Reader is the catalog contract consumed by the engine. Implementations never write.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	GetBranch(ctx context.Context, id int64) (Branch, error)
	DefaultWarehouse(ctx context.Context) (Branch, error)
}
