package aggregator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/avabff/internal/downstream"
	"github.com/vyrodovalexey/avabff/internal/model"
	"github.com/vyrodovalexey/avabff/internal/observability"
	"github.com/vyrodovalexey/avabff/internal/util"
)

// UserSummary is a user with their orders and the payment of each order.
// Degraded is set when some orders or payments could not be fetched; the
// failed parts are listed in Errors.
type UserSummary struct {
	User     model.UserRecord `json:"user"`
	Orders   []OrderSummary   `json:"orders"`
	Degraded bool             `json:"degraded"`
	Errors   []PartError      `json:"errors,omitempty"`
}

// OrderSummary is an order with its payment, if any.
type OrderSummary struct {
	model.OrderRecord
	Payment *model.PaymentRecord `json:"payment"`
}

// PartError names a failed part of a composed response by kind only.
type PartError struct {
	Part  string `json:"part"`
	Error string `json:"error"`
}

// Summary composes a user summary in two concurrent stages: user and
// orders, then one payment lookup per order. A failed user lookup fails
// the whole request. Failed order or payment lookups degrade it.
func (o *Orchestrator) Summary(
	ctx context.Context,
	cc observability.CorrelationContext,
	userID int,
) (*UserSummary, error) {
	var (
		user      model.UserRecord
		orders    []model.OrderRecord
		ordersErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)
	g.Go(func() error {
		u, err := o.User(gctx, cc, userID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	g.Go(func() error {
		orders, ordersErr = o.OrdersByUser(gctx, cc, userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &UserSummary{User: user, Orders: make([]OrderSummary, len(orders))}
	if ordersErr != nil {
		summary.addError("orders", ordersErr)
	}

	payments := make([]*model.PaymentRecord, len(orders))
	paymentErrs := make([]error, len(orders))

	var pg errgroup.Group
	pg.SetLimit(o.maxConcurrency)
	for i, order := range orders {
		pg.Go(func() error {
			p, err := o.PaymentByOrder(ctx, cc, order.ID)
			switch {
			case err == nil:
				payments[i] = &p
			case !errors.Is(err, util.ErrNotFound):
				paymentErrs[i] = err
			}
			return nil
		})
	}
	_ = pg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, requestAborted(err)
	}

	for i, order := range orders {
		summary.Orders[i] = OrderSummary{OrderRecord: order, Payment: payments[i]}
		if paymentErrs[i] != nil {
			summary.addError(fmt.Sprintf("payment:%d", order.ID), paymentErrs[i])
		}
	}
	return summary, nil
}

func (s *UserSummary) addError(part string, err error) {
	s.Degraded = true
	s.Errors = append(s.Errors, PartError{Part: part, Error: downstream.Outcome(err)})
}

// requestAborted converts the end of the request context into a typed
// downstream error.
func requestAborted(err error) error {
	kind := downstream.KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = downstream.KindTimeout
	}
	return &downstream.Error{Kind: kind, Service: "gateway", Path: "summary", Cause: err}
}
