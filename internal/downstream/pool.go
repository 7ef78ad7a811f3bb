package downstream

import (
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avabff/internal/config"
)

// backends is the number of resource services the gateway talks to.
const backends = 3

// PoolConfig sizes the transport shared by the downstream clients.
type PoolConfig struct {
	// IdlePerHost caps the keep-alive connections kept to one resource
	// service. Open connections are not capped, so a slow service never
	// makes unrelated requests queue for a connection.
	IdlePerHost int
	IdleTimeout time.Duration
	DialTimeout time.Duration
	// HeaderTimeout is a backstop; calls are bounded by their context first.
	HeaderTimeout time.Duration
}

// PoolConfigFor derives pool sizes from the downstream settings. Every
// composed request runs at most MaxConcurrency calls against one service,
// so a few requests' worth of idle connections per host is kept.
func PoolConfigFor(cfg *config.DownstreamConfig) PoolConfig {
	pc := PoolConfig{
		IdlePerHost:   4 * config.DefaultMaxConcurrency,
		IdleTimeout:   90 * time.Second,
		DialTimeout:   DefaultTimeout,
		HeaderTimeout: 30 * time.Second,
	}
	if cfg == nil {
		return pc
	}
	if cfg.MaxConcurrency > 0 {
		pc.IdlePerHost = 4 * cfg.MaxConcurrency
	}
	if t := cfg.Timeout.Duration(); t > 0 && t < pc.DialTimeout {
		pc.DialTimeout = t
	}
	return pc
}

// ConnectionPool owns the keep-alive connections to the resource services.
type ConnectionPool struct {
	transport *http.Transport
	client    *http.Client
}

// NewConnectionPool builds the shared transport.
func NewConnectionPool(pc PoolConfig) *ConnectionPool {
	dialer := &net.Dialer{Timeout: pc.DialTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          backends * pc.IdlePerHost,
		MaxIdleConnsPerHost:   pc.IdlePerHost,
		IdleConnTimeout:       pc.IdleTimeout,
		ResponseHeaderTimeout: pc.HeaderTimeout,
	}

	// No client timeout: each call carries its own deadline.
	return &ConnectionPool{
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
}

// Client returns the HTTP client every downstream Client should share.
func (p *ConnectionPool) Client() *http.Client {
	return p.client
}

// Close drops idle keep-alive connections. Calls in flight are unaffected.
func (p *ConnectionPool) Close() {
	p.transport.CloseIdleConnections()
}
