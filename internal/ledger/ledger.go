// Package ledger keeps the stock-consistency invariant: a product's current
// stock equals its baseline plus the signed sum of every ledger entry
// referencing it (+quantity for IN, -quantity for OUT). The three operations
// apply the minimal delta and take the aggregate by value, returning a new
// one, so callers keep copy-on-write semantics.
package ledger

import (
	"github.com/careflowhq/careflow/internal/domain/models"
	"github.com/careflowhq/careflow/pkg/ids"
)

// Append records a new ledger entry, assigning an identifier when the entry
// carries none, and applies its delta to the referenced product. An entry
// whose product reference is dangling is still recorded; only the stock
// update is skipped.
func Append(data models.AppData, entry models.Transaction) models.AppData {
	next := data.Clone()

	if entry.ID == "" {
		entry.ID = ids.New()
	}

	if i := productIndex(next.Products, entry.ProductID); i >= 0 {
		p := next.Products[i]
		p.CurrentStock += entry.StockDelta()
		next.Products[i] = p
	}

	next.Transactions = append(next.Transactions, entry)
	return next
}

// Remove deletes the entry with the given id and applies the inverse delta
// to its product. An unknown id is a no-op, not an error.
func Remove(data models.AppData, entryID string) models.AppData {
	idx := transactionIndex(data.Transactions, entryID)
	if idx < 0 {
		return data
	}

	next := data.Clone()
	entry := next.Transactions[idx]

	if i := productIndex(next.Products, entry.ProductID); i >= 0 {
		p := next.Products[i]
		p.CurrentStock -= entry.StockDelta()
		next.Products[i] = p
	}

	next.Transactions = append(next.Transactions[:idx], next.Transactions[idx+1:]...)
	return next
}

// Amend replaces the stored entry carrying updated.ID and adjusts stock by
// the quantity difference, signed by the updated entry's direction and
// applied to the updated entry's product. An unknown id is a no-op.
//
// When the product reference itself changed between old and new, the old
// product's stock is not retroactively corrected; the delta lands entirely
// on the new product. Known limitation, kept as-is.
func Amend(data models.AppData, updated models.Transaction) models.AppData {
	idx := transactionIndex(data.Transactions, updated.ID)
	if idx < 0 {
		return data
	}

	next := data.Clone()
	old := next.Transactions[idx]

	qtyDiff := updated.Quantity - old.Quantity
	if i := productIndex(next.Products, updated.ProductID); i >= 0 {
		adjustment := qtyDiff
		if updated.Type != models.TransactionIn {
			adjustment = -qtyDiff
		}
		p := next.Products[i]
		p.CurrentStock += adjustment
		next.Products[i] = p
	}

	next.Transactions[idx] = updated
	return next
}

func productIndex(products []models.Product, id string) int {
	for i, p := range products {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func transactionIndex(entries []models.Transaction, id string) int {
	for i, t := range entries {
		if t.ID == id {
			return i
		}
	}
	return -1
}
