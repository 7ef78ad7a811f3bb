// Package config provides configuration types and loading for the
// gateway and the resource services.
//
// Values are layered: built-in defaults, then a YAML file (with
// ${VAR:-default} substitution), then well-known environment variables
// such as LOG_SINK_URL, APP_NAME, APP_ENV, LOG_LEVEL and LISTEN_ADDRESS.
//
//	cfg, err := config.LoadConfig("configs/gateway.yaml", config.RoleGateway)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg, config.RoleGateway); err != nil {
//	    log.Fatal(err)
//	}
//
// A Watcher reloads the file on change and applies the new log level
// without a restart:
//
//	w, err := config.NewWatcher(path, config.RoleGateway, config.ApplyLogLevel(logger))
package config
