package main

import (
	"strings"

	"github.com/vyrodovalexey/avabff/internal/aggregator"
	"github.com/vyrodovalexey/avabff/internal/app"
	"github.com/vyrodovalexey/avabff/internal/config"
	"github.com/vyrodovalexey/avabff/internal/downstream"
	"github.com/vyrodovalexey/avabff/internal/gateway"
	"github.com/vyrodovalexey/avabff/internal/health"
	"github.com/vyrodovalexey/avabff/internal/middleware"
)

const defaultServiceName = "bff-gateway"

// initApplication builds the gateway: downstream clients over a shared
// connection pool, the orchestrator, and the public routes.
func initApplication(cfg *config.Config, flags cliFlags) (*app.App, error) {
	a, err := app.New(cfg, config.RoleGateway, buildInfo(),
		app.WithConfigPath(flags.configPath),
		app.WithConfigOverride(func(c *config.Config) { applyFlags(c, flags) }),
	)
	if err != nil {
		return nil, err
	}

	logger := a.Logger()
	pool := downstream.NewConnectionPool(downstream.PoolConfigFor(cfg.Downstream))
	a.OnShutdown(pool.Close)

	clients, err := downstream.NewClients(cfg.Downstream,
		downstream.WithHTTPClient(pool.Client()),
		downstream.WithLogger(logger),
		downstream.WithMetrics(a.Metrics()),
		downstream.WithTracer(a.Tracer()),
	)
	if err != nil {
		return nil, err
	}

	orch, err := aggregator.New(clients,
		aggregator.WithLogger(logger),
		aggregator.WithMetrics(a.Metrics()),
		aggregator.WithTracer(a.Tracer()),
		aggregator.WithRequestTimeout(cfg.Downstream.RequestTimeout.Duration()),
		aggregator.WithMaxConcurrency(cfg.Downstream.MaxConcurrency),
	)
	if err != nil {
		return nil, err
	}

	engine := a.Server().Engine()
	engine.Use(middleware.Recovery(logger, nil))
	gateway.NewHandler(orch).RegisterRoutes(engine)

	services := cfg.Downstream.Services
	for name, ep := range map[string]config.ServiceEndpoint{
		downstream.ServiceUser:    services.User,
		downstream.ServiceOrder:   services.Order,
		downstream.ServicePayment: services.Payment,
	} {
		probe := strings.TrimSuffix(ep.BaseURL, "/") + "/live"
		a.Health().RegisterCheck(name+"_service", health.HTTPCheck(pool.Client(), probe, false))
	}

	return a, nil
}
