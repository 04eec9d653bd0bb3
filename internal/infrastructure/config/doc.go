// Package config provides environment based process configuration for seadaemon.
//
// Settings are read from SEADAEMON_* environment variables with defaults.
// A .env file in the working directory is applied first when present.
// These settings cover where the daemon keeps its state and how it
// behaves; host, port, log level and credentials live in the persisted
// daemon options instead (see the store package).
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	st, err := store.Open(cfg.ConfigPath(), cfg.AppsPath())
//
// Environment Variables:
//   - SEADAEMON_DATA_DIR, SEADAEMON_CONFIG_FILE, SEADAEMON_APPS_DIR, SEADAEMON_LOG_DIR
//   - SEADAEMON_LOG_LEVEL, SEADAEMON_LOG_DEV
//   - SEADAEMON_DOWNLOAD_TIMEOUT, SEADAEMON_HOOK_TIMEOUT, SEADAEMON_MAX_ARCHIVE_BYTES, SEADAEMON_LOCAL_SOURCES
//   - SEADAEMON_PRUNE_SCHEDULE, SEADAEMON_STOP_SIGNAL, SEADAEMON_WATCH_APPS
//   - SEADAEMON_RATE_LIMIT, SEADAEMON_RATE_BURST, SEADAEMON_CORS_ORIGINS, SEADAEMON_METRICS_ENABLED
package config
