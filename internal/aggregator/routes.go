package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vyrodovalexey/avabff/internal/downstream"
	"github.com/vyrodovalexey/avabff/internal/model"
	"github.com/vyrodovalexey/avabff/internal/observability"
	"github.com/vyrodovalexey/avabff/internal/util"
)

// ParseID parses a positive integer path parameter.
func ParseID(name, raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", util.ErrInvalidInput, name)
	}
	return id, nil
}

// User fetches one user.
func (o *Orchestrator) User(ctx context.Context, cc observability.CorrelationContext, id int) (model.UserRecord, error) {
	return downstream.Get[model.UserRecord](ctx, o.clients.User, cc, fmt.Sprintf("/users/%d", id))
}

// OrdersByUser fetches the orders of a user. A user without orders yields
// an empty, non-nil slice.
func (o *Orchestrator) OrdersByUser(
	ctx context.Context,
	cc observability.CorrelationContext,
	userID int,
) ([]model.OrderRecord, error) {
	orders, err := downstream.Get[[]model.OrderRecord](ctx, o.clients.Order, cc,
		fmt.Sprintf("/orders?userId=%d", userID))
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.OrderRecord{}
	}
	return orders, nil
}

// PaymentByOrder fetches the payment of an order. An order without a
// payment is reported as a not-found downstream error.
func (o *Orchestrator) PaymentByOrder(
	ctx context.Context,
	cc observability.CorrelationContext,
	orderID int,
) (model.PaymentRecord, error) {
	path := fmt.Sprintf("/payments?orderId=%d", orderID)
	payments, err := downstream.Get[[]model.PaymentRecord](ctx, o.clients.Payment, cc, path)
	if err != nil {
		return model.PaymentRecord{}, err
	}
	if len(payments) == 0 {
		return model.PaymentRecord{}, &downstream.Error{
			Kind:    downstream.KindNotFound,
			Service: o.clients.Payment.Service(),
			Path:    path,
		}
	}
	return payments[0], nil
}

// Fault calls the user service's diagnostic route, which always fails.
func (o *Orchestrator) Fault(ctx context.Context, cc observability.CorrelationContext) (json.RawMessage, error) {
	var out json.RawMessage
	if err := o.clients.User.Fetch(ctx, cc, "/users/error", &out); err != nil {
		return nil, err
	}
	return out, nil
}
