package sales

import (
	"math"

	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/discount"
)

// DefaultTaxRate is the IVA applied to the discounted subtotal.
const DefaultTaxRate = 0.16

// RoundCents rounds half away from zero to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Totals are the authoritative amounts of a sale.
type Totals struct {
	Subtotal float64
	Discount float64
	Tax      float64
	Total    float64
}

// PriceLines resolves each line's price tier.
func PriceLines(lines []LineInput, products map[int64]catalog.Product) ([]Item, bool) {
	items := make([]Item, 0, len(lines))
	wholesale := false
	for _, line := range lines {
		p := products[line.ProductID]
		price, isWholesale := p.UnitPrice(line.Quantity)
		items = append(items, Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   RoundCents(price),
			LineTotal:   RoundCents(price * float64(line.Quantity)),
			Wholesale:   isWholesale,
		})
		wholesale = wholesale || isWholesale
	}
	return items, wholesale
}

// ComputeTotals derives subtotal, discount, tax and total. The discount is
// clamped to [0, subtotal].
func ComputeTotals(items []Item, discountType discount.Type, discountAmount, taxRate float64) Totals {
	var subtotal float64
	for _, it := range items {
		subtotal += it.LineTotal
	}
	subtotal = RoundCents(subtotal)

	var off float64
	switch discountType {
	case discount.TypePercentage:
		off = subtotal * discountAmount / 100
	case discount.TypeFixed:
		off = discountAmount
	}
	off = RoundCents(math.Min(math.Max(off, 0), subtotal))

	taxable := RoundCents(subtotal - off)
	tax := RoundCents(taxable * taxRate)
	return Totals{
		Subtotal: subtotal,
		Discount: off,
		Tax:      tax,
		Total:    RoundCents(taxable + tax),
	}
}

// mergeLines folds duplicate products into one line, keeping first-seen order.
func mergeLines(lines []LineInput) []LineInput {
	index := make(map[int64]int, len(lines))
	merged := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}
