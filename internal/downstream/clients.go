package downstream

import (
	"fmt"

	"github.com/vyrodovalexey/avabff/internal/config"
)

// Service names used in logs, metrics, and span attributes.
const (
	ServiceUser    = "user"
	ServiceOrder   = "order"
	ServicePayment = "payment"
)

// Clients holds one client per resource service.
type Clients struct {
	User    *Client
	Order   *Client
	Payment *Client
}

// NewClients builds the clients of every configured resource service.
// opts apply to all of them; per-service timeouts fall back to
// cfg.Timeout.
func NewClients(cfg *config.DownstreamConfig, opts ...Option) (*Clients, error) {
	if cfg == nil {
		return nil, fmt.Errorf("downstream configuration is required")
	}

	build := func(name string, ep config.ServiceEndpoint) (*Client, error) {
		timeout := ep.TimeoutOr(cfg.Timeout.Duration())
		return NewClient(name, ep.BaseURL, append(opts[:len(opts):len(opts)], WithTimeout(timeout))...)
	}

	user, err := build(ServiceUser, cfg.Services.User)
	if err != nil {
		return nil, err
	}
	order, err := build(ServiceOrder, cfg.Services.Order)
	if err != nil {
		return nil, err
	}
	payment, err := build(ServicePayment, cfg.Services.Payment)
	if err != nil {
		return nil, err
	}

	return &Clients{User: user, Order: order, Payment: payment}, nil
}
