package resource

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avabff/internal/config"
	"github.com/vyrodovalexey/avabff/internal/model"
	"github.com/vyrodovalexey/avabff/internal/observability"
)

// Handler is a resource service ready to be mounted on a router.
type Handler interface {
	Name() string
	RegisterRoutes(r gin.IRoutes)
}

// New builds the seeded service of the given kind.
func New(cfg *config.ResourceConfig, logger observability.Logger) (Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("resource configuration is required")
	}

	latency := make(map[int]time.Duration, len(cfg.Latency))
	for _, l := range cfg.Latency {
		latency[l.ID] = l.Delay.Duration()
	}

	switch cfg.Kind {
	case config.KindUser:
		return NewUserService(SeedUsers(), latency, logger)
	case config.KindOrder:
		return NewOrderService(SeedOrders(), latency, logger)
	case config.KindPayment:
		return NewPaymentService(SeedPayments(), latency, logger)
	default:
		return nil, fmt.Errorf("unknown resource kind %q", cfg.Kind)
	}
}

// NewUserService serves /users, /users/:id and the /users/error
// diagnostic route.
func NewUserService(
	records []model.UserRecord,
	latency map[int]time.Duration,
	logger observability.Logger,
) (*Service[model.UserRecord], error) {
	store, err := NewStore(records)
	if err != nil {
		return nil, err
	}
	return NewService(ServiceConfig[model.UserRecord]{
		Name:            config.KindUser,
		Resource:        "users",
		Store:           store,
		Latency:         latency,
		DiagnosticFault: true,
		Logger:          logger,
	})
}

// NewOrderService serves /orders (filterable by userId) and /orders/:id.
func NewOrderService(
	records []model.OrderRecord,
	latency map[int]time.Duration,
	logger observability.Logger,
) (*Service[model.OrderRecord], error) {
	store, err := NewStore(records)
	if err != nil {
		return nil, err
	}
	return NewService(ServiceConfig[model.OrderRecord]{
		Name:     config.KindOrder,
		Resource: "orders",
		Store:    store,
		Filters: []Filter[model.OrderRecord]{{
			Param: "userId",
			Match: func(o model.OrderRecord, userID int) bool { return o.UserID == userID },
		}},
		Latency: latency,
		Logger:  logger,
	})
}

// NewPaymentService serves /payments (filterable by orderId) and
// /payments/:id.
func NewPaymentService(
	records []model.PaymentRecord,
	latency map[int]time.Duration,
	logger observability.Logger,
) (*Service[model.PaymentRecord], error) {
	store, err := NewPaymentStore(records)
	if err != nil {
		return nil, err
	}
	return NewService(ServiceConfig[model.PaymentRecord]{
		Name:     config.KindPayment,
		Resource: "payments",
		Store:    store,
		Filters: []Filter[model.PaymentRecord]{{
			Param: "orderId",
			Match: func(p model.PaymentRecord, orderID int) bool { return p.OrderID == orderID },
		}},
		Latency: latency,
		Logger:  logger,
	})
}
