package domain

// Reservation is a consume-once claim of quantity against a product's stock.
// It is owned by the inventory ledger until released or committed; orders keep
// only the ID.
type Reservation struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
}

// Availability is a point-in-time snapshot of a product's stock counters.
type Availability struct {
	ProductID  string
	TotalStock int
	Reserved   int
}

func (a Availability) Available() int {
	return a.TotalStock - a.Reserved
}
