// Package model defines the records served by the resource services and
// consumed by the gateway.
package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidRecord is returned when a record violates its invariants.
var ErrInvalidRecord = errors.New("invalid record")

// Keyed is satisfied by records that expose a unique positive id.
type Keyed interface {
	Key() int
	Validate() error
}

// UserRecord is a user known to the user service.
type UserRecord struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Key returns the user id.
func (u UserRecord) Key() int { return u.ID }

// Validate checks the record invariants.
func (u UserRecord) Validate() error {
	if u.ID <= 0 {
		return fmt.Errorf("%w: user id %d must be positive", ErrInvalidRecord, u.ID)
	}
	return nil
}

// OrderRecord is an order placed by a user. UserID references a user
// owned by another service and is not checked here.
type OrderRecord struct {
	ID          int    `json:"id"`
	UserID      int    `json:"userId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

// Key returns the order id.
func (o OrderRecord) Key() int { return o.ID }

// Validate checks the record invariants.
func (o OrderRecord) Validate() error {
	if o.ID <= 0 {
		return fmt.Errorf("%w: order id %d must be positive", ErrInvalidRecord, o.ID)
	}
	if o.Quantity < 0 {
		return fmt.Errorf("%w: order %d has negative quantity", ErrInvalidRecord, o.ID)
	}
	return nil
}

// PaymentRecord is a payment for an order.
type PaymentRecord struct {
	ID      int             `json:"id"`
	OrderID int             `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

// paymentWire is the JSON shape of a payment.
type paymentWire struct {
	ID      int         `json:"id"`
	OrderID int         `json:"orderId"`
	Amount  json.Number `json:"amount"`
}

// MarshalJSON writes Amount as a JSON number, like the other fields.
// Decoding accepts both numbers and strings through decimal.Decimal.
func (p PaymentRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(paymentWire{
		ID:      p.ID,
		OrderID: p.OrderID,
		Amount:  json.Number(p.Amount.String()),
	})
}

// Key returns the payment id.
func (p PaymentRecord) Key() int { return p.ID }

// Validate checks the record invariants.
func (p PaymentRecord) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("%w: payment id %d must be positive", ErrInvalidRecord, p.ID)
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: payment %d has negative amount", ErrInvalidRecord, p.ID)
	}
	return nil
}
