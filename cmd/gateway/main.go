// Package main is the entry point for the BFF gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avabff/internal/app"
	"github.com/vyrodovalexey/avabff/internal/config"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	showVersion bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return 0
	}

	cfg, err := loadAndValidateConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	a, err := initApplication(cfg, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize gateway: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gateway stopped with error: %v\n", err)
		return 1
	}
	return 0
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", app.EnvOrDefault("GATEWAY_CONFIG_PATH", ""),
		"Path to configuration file; defaults and environment only when empty")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avabff gateway version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func buildInfo() app.BuildInfo {
	return app.BuildInfo{Version: version, BuildTime: buildTime, GitCommit: gitCommit}
}

// loadAndValidateConfig loads the gateway configuration and applies the
// command line overrides.
func loadAndValidateConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath, config.RoleGateway)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, flags)

	if err := config.ValidateConfig(cfg, config.RoleGateway); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags keeps command line values authoritative, including across
// config reloads.
func applyFlags(cfg *config.Config, flags cliFlags) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaultServiceName
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
}
