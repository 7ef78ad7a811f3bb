package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avabff/internal/config"
	"github.com/vyrodovalexey/avabff/internal/observability"
)

// Run starts the process and blocks until ctx is done or the server
// fails, then shuts down gracefully. In-flight requests get up to
// server.shutdownTimeout to finish.
func (a *App) Run(ctx context.Context) error {
	logger := a.pipeline.Logger()
	a.pipeline.Start()

	if err := a.server.Listen(); err != nil {
		return errors.Join(err, a.pipeline.Stop(context.Background()))
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Start() }()

	if err := a.startConfigWatcher(ctx); err != nil {
		logger.Warn("config hot reload disabled", observability.Error(err))
	}

	logger.Info("service started",
		observability.String("address", a.server.Addr()),
		observability.String("role", string(a.role)),
		observability.String("version", a.info.Version),
		observability.String("config", a.config.String()),
	)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var runErr error
	for done := false; !done; {
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal")
			done = true
		case err := <-serveErr:
			if err != nil {
				runErr = err
				logger.Error("server failed", observability.Error(err))
			}
			done = true
		case <-hup:
			a.reload()
		}
	}

	return errors.Join(runErr, a.shutdown())
}

// reload re-reads the config file on SIGHUP. The previous configuration
// stays in effect when the file is invalid.
func (a *App) reload() {
	logger := a.pipeline.Logger()
	if a.watcher == nil {
		logger.Warn("reload requested but no config file is watched")
		return
	}
	if err := a.watcher.ForceReload(); err != nil {
		logger.Error("configuration reload rejected; keeping previous", observability.Error(err))
	}
}

// startConfigWatcher watches the config file and applies logging.level
// changes. Other changes are logged as requiring a restart.
func (a *App) startConfigWatcher(ctx context.Context) error {
	if a.configPath == "" {
		return nil
	}

	logger := a.pipeline.Logger()
	opts := []config.WatcherOption{
		config.WithLogger(logger),
		config.WithInitialConfig(a.config),
	}
	for _, fn := range a.overrides {
		opts = append(opts, config.WithOverride(fn))
	}

	watcher, err := config.NewWatcher(a.configPath, a.role, config.ApplyLogLevel(logger), opts...)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		_ = watcher.Stop()
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	a.watcher = watcher
	return nil
}

// shutdown drains the server and flushes telemetry. The readiness probe
// reports unhealthy from the moment draining starts.
func (a *App) shutdown() error {
	logger := a.pipeline.Logger()
	a.health.SetDraining(true)

	timeout := a.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop config watcher: %w", err))
		}
	}

	if err := a.server.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	for _, fn := range a.closers {
		fn()
	}

	logger.Info("service stopped")

	// Last, so the records above still reach the sink.
	if err := a.pipeline.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
