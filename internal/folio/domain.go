// Package folio allocates branch-scoped, human-readable document numbers.
package folio

import (
	"context"
	"fmt"
)

// DocType names an independent numbering sequence.
type DocType string

const (
	DocSale           DocType = "sale"
	DocRestockSheet   DocType = "restock_sheet"
	DocRestockRequest DocType = "restock_request"
	DocTransfer       DocType = "transfer"
	DocReturn         DocType = "return"
	DocCoinChange     DocType = "coin_change"
	DocSupplyOrder    DocType = "supply_order"
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	switch t {
	case DocSale, DocRestockSheet, DocRestockRequest, DocTransfer, DocReturn, DocCoinChange, DocSupplyOrder:
		return true
	}
	return false
}

// Sequencer hands out folios. Implementations must guarantee that values are
// unique and strictly increasing per (branch, document type).
type Sequencer interface {
	Next(ctx context.Context, branchID int64, docType DocType) (int64, error)
	Current(ctx context.Context, branchID int64, docType DocType) (int64, error)
}

// Format renders a folio the way printed documents show it, e.g. "S12-000042".
func Format(branchID int64, docType DocType, value int64) string {
	return fmt.Sprintf("%s%d-%06d", prefix(docType), branchID, value)
}

func prefix(t DocType) string {
	switch t {
	case DocSale:
		return "S"
	case DocRestockSheet:
		return "RS"
	case DocRestockRequest:
		return "RR"
	case DocTransfer:
		return "T"
	case DocReturn:
		return "D"
	case DocCoinChange:
		return "C"
	case DocSupplyOrder:
		return "SO"
	}
	return "X"
}
