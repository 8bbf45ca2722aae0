// Package sales records point-of-sale transactions against the inventory ledger.
package sales

import (
	"time"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/discount"
)

// PaymentMethod is how the customer paid.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard || m == PaymentTransfer
}

// PaymentType separates settled sales (contado) from sales on account (credito).
type PaymentType string

const (
	PaymentTypeCash   PaymentType = "cash"
	PaymentTypeCredit PaymentType = "credit"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	return t == PaymentTypeCash || t == PaymentTypeCredit
}

// LineInput is one requested cart line.
type LineInput struct {
	ProductID int64
	Quantity  int64
}

// DiscountInput is the discount the cashier wants applied. When RequestID is
// set, the approved request's type and amount are used instead.
type DiscountInput struct {
	Type      discount.Type
	Amount    float64
	RequestID uuid.UUID
}

// SaleInput is a cart submitted for checkout.
type SaleInput struct {
	BranchID       int64
	Items          []LineInput
	PaymentMethod  PaymentMethod
	PaymentType    PaymentType
	ClientID       int64
	Discount       *DiscountInput
	IdempotencyKey string
	CashierID      int64
}

// Item is a priced sale line.
type Item struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
	Wholesale   bool    `json:"wholesale"`
}

// Sale is an immutable record of a completed checkout.
type Sale struct {
	ID                uuid.UUID     `json:"id"`
	BranchID          int64         `json:"branch_id"`
	Folio             int64         `json:"folio"`
	ClientID          int64         `json:"client_id,omitempty"`
	CashierID         int64         `json:"cashier_id,omitempty"`
	Items             []Item        `json:"items"`
	Subtotal          float64       `json:"subtotal"`
	DiscountAmount    float64       `json:"discount_amount"`
	TaxAmount         float64       `json:"tax_amount"`
	Total             float64       `json:"total"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	PaymentType       PaymentType   `json:"payment_type"`
	IsWholesale       bool          `json:"is_wholesale"`
	DiscountRequestID *uuid.UUID    `json:"discount_request_id,omitempty"`
	IdempotencyKey    string        `json:"-"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Receipt is returned to the point of sale. Quantities holds the remaining
// stock per product at the sale branch after the sale.
type Receipt struct {
	SaleID            uuid.UUID       `json:"sale_id"`
	Folio             int64           `json:"folio"`
	Subtotal          float64         `json:"subtotal"`
	DiscountAmount    float64         `json:"discount_amount"`
	Tax               float64         `json:"tax"`
	Total             float64         `json:"total"`
	IsWholesale       bool            `json:"is_wholesale"`
	Items             []Item          `json:"items"`
	Quantities        map[int64]int64 `json:"quantities"`
	Replayed          bool            `json:"replayed"`
	ClientAttachError string          `json:"client_attach_error,omitempty"`
}

// SaleFilter narrows sale listings.
type SaleFilter struct {
	BranchID int64
	From     time.Time
	To       time.Time
	Limit    int
}

func receiptFor(sale Sale, quantities map[int64]int64) Receipt {
	return Receipt{
		SaleID:         sale.ID,
		Folio:          sale.Folio,
		Subtotal:       sale.Subtotal,
		DiscountAmount: sale.DiscountAmount,
		Tax:            sale.TaxAmount,
		Total:          sale.Total,
		IsWholesale:    sale.IsWholesale,
		Items:          sale.Items,
		Quantities:     quantities,
	}
}
