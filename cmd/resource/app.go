package main

import (
	"github.com/vyrodovalexey/avabff/internal/app"
	"github.com/vyrodovalexey/avabff/internal/config"
	"github.com/vyrodovalexey/avabff/internal/middleware"
	"github.com/vyrodovalexey/avabff/internal/resource"
)

// initApplication builds a resource service behind the recovery,
// correlation, logging and metrics middleware.
func initApplication(cfg *config.Config, flags cliFlags) (*app.App, error) {
	a, err := app.New(cfg, config.RoleResource, buildInfo(),
		app.WithConfigPath(flags.configPath),
		app.WithConfigOverride(func(c *config.Config) { applyFlags(c, flags) }),
	)
	if err != nil {
		return nil, err
	}

	logger := a.Logger()

	svc, err := resource.New(cfg.Resource, logger)
	if err != nil {
		return nil, err
	}

	metrics, err := middleware.NewMetrics(svc.Name(), a.Metrics().Registry())
	if err != nil {
		return nil, err
	}

	engine := a.Server().Engine()
	engine.Use(
		middleware.Recovery(logger, metrics),
		middleware.Correlation(a.Tracer()),
		middleware.Logging(logger),
		metrics.Handler(),
	)
	svc.RegisterRoutes(engine)

	return a, nil
}
