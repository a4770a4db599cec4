package models

// Product is an inventory item. CurrentStock is the derived quantity kept in
// step with the transaction ledger; it may legitimately go negative after
// corrective OUT entries and is never clamped.
type Product struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	Category     string `json:"category"`
	CurrentStock int    `json:"currentStock"`
	MinStock     int    `json:"minStock"`
	Unit         string `json:"unit"`
}

// TransactionType is the direction of a stock movement.
type TransactionType string

const (
	TransactionIn  TransactionType = "IN"
	TransactionOut TransactionType = "OUT"
)

// Transaction is one ledger entry. Quantity is always stored positive; the
// direction carries the sign. ProductName and ResidentName are display names
// frozen at creation time and deliberately not kept in sync with later
// renames, so historical records stay faithful.
type Transaction struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"`
	Type         TransactionType `json:"type"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ResidentID   string          `json:"residentId"`
	ResidentName string          `json:"residentName"`
	Quantity     int             `json:"quantity"`
	Notes        string          `json:"notes"`
}

// StockDelta is the signed contribution of this entry to its product's
// current stock.
func (t Transaction) StockDelta() int {
	if t.Type == TransactionIn {
		return t.Quantity
	}
	return -t.Quantity
}
