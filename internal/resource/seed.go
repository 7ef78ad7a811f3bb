package resource

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/avabff/internal/model"
)

// SeedUsers returns the user service dataset.
func SeedUsers() []model.UserRecord {
	return []model.UserRecord{
		{ID: 1, Name: "Alice", Email: "alice@example.com"},
		{ID: 2, Name: "Bob", Email: "bob@example.com"},
	}
}

// SeedOrders returns the order service dataset.
func SeedOrders() []model.OrderRecord {
	return []model.OrderRecord{
		{ID: 1, UserID: 1, ProductName: "Laptop", Quantity: 1},
		{ID: 2, UserID: 2, ProductName: "Mouse", Quantity: 2},
	}
}

// SeedPayments returns the payment service dataset.
func SeedPayments() []model.PaymentRecord {
	return []model.PaymentRecord{
		{ID: 1, OrderID: 1, Amount: decimal.RequireFromString("1500.00")},
		{ID: 2, OrderID: 2, Amount: decimal.RequireFromString("25.50")},
	}
}

// NewPaymentStore builds a payment store and enforces at most one
// payment per order.
func NewPaymentStore(records []model.PaymentRecord) (*Store[model.PaymentRecord], error) {
	seen := make(map[int]int, len(records))
	for _, p := range records {
		if other, dup := seen[p.OrderID]; dup {
			return nil, fmt.Errorf("%w: payments %d and %d share order %d",
				model.ErrInvalidRecord, other, p.ID, p.OrderID)
		}
		seen[p.OrderID] = p.ID
	}
	return NewStore(records)
}
