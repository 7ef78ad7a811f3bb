// Package gateway exposes the BFF routes. Each handler resolves the
// correlation id, parses its path parameters inside an
// aggregator.Operation and hands it to the orchestrator, which owns status
// mapping, logging and metrics for the request.
package gateway

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avabff/internal/aggregator"
	"github.com/vyrodovalexey/avabff/internal/observability"
)

// Route templates.
const (
	RouteUser           = "/user/:id"
	RouteOrdersByUser   = "/orders/user/:userId"
	RoutePaymentByOrder = "/payment/:orderId"
	RouteUserSummary    = "/summary/user/:id"
	RouteFault          = "/diagnostics/fault"
)

// Handler serves the gateway routes.
type Handler struct {
	orch *aggregator.Orchestrator
}

// NewHandler creates a handler backed by orch.
func NewHandler(orch *aggregator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// RegisterRoutes registers every gateway route on r.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET(RouteUser, h.user)
	r.GET(RouteOrdersByUser, h.ordersByUser)
	r.GET(RoutePaymentByOrder, h.paymentByOrder)
	r.GET(RouteUserSummary, h.summary)
	r.GET(RouteFault, h.fault)
}

func (h *Handler) user(c *gin.Context) {
	raw := c.Param("id")
	h.serve(c, func(ctx context.Context, cc observability.CorrelationContext) (any, error) {
		id, err := aggregator.ParseID("id", raw)
		if err != nil {
			return nil, err
		}
		return h.orch.User(ctx, cc, id)
	})
}

func (h *Handler) ordersByUser(c *gin.Context) {
	raw := c.Param("userId")
	h.serve(c, func(ctx context.Context, cc observability.CorrelationContext) (any, error) {
		userID, err := aggregator.ParseID("userId", raw)
		if err != nil {
			return nil, err
		}
		return h.orch.OrdersByUser(ctx, cc, userID)
	})
}

func (h *Handler) paymentByOrder(c *gin.Context) {
	raw := c.Param("orderId")
	h.serve(c, func(ctx context.Context, cc observability.CorrelationContext) (any, error) {
		orderID, err := aggregator.ParseID("orderId", raw)
		if err != nil {
			return nil, err
		}
		return h.orch.PaymentByOrder(ctx, cc, orderID)
	})
}

func (h *Handler) summary(c *gin.Context) {
	raw := c.Param("id")
	h.serve(c, func(ctx context.Context, cc observability.CorrelationContext) (any, error) {
		id, err := aggregator.ParseID("id", raw)
		if err != nil {
			return nil, err
		}
		return h.orch.Summary(ctx, cc, id)
	})
}

func (h *Handler) fault(c *gin.Context) {
	h.serve(c, func(ctx context.Context, cc observability.CorrelationContext) (any, error) {
		return h.orch.Fault(ctx, cc)
	})
}

// serve resolves the correlation id before handing the request over, so a
// panic recovered further up the chain is logged and answered under it.
func (h *Handler) serve(c *gin.Context, op aggregator.Operation) {
	route := c.FullPath()
	cc := observability.NewCorrelationContext(c.GetHeader(observability.CorrelationHeader), route, time.Now())
	c.Request = c.Request.WithContext(observability.ContextWithCorrelation(c.Request.Context(), cc))
	c.Header(observability.CorrelationHeader, cc.ID())

	resp := h.orch.Handle(c.Request.Context(), aggregator.Request{
		Route:         route,
		CorrelationID: cc.ID(),
		Header:        c.Request.Header,
	}, op)

	c.Header(observability.CorrelationHeader, resp.CorrelationID)
	c.JSON(resp.Status, resp.Body)
}
