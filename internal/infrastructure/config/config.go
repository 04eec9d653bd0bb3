package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name
const Prefix = "SEADAEMON"

// Config holds all process configuration.
type Config struct {
	Paths      PathsConfig
	Logging    LogConfig
	Install    InstallConfig
	Supervisor SupervisorConfig
	HTTP       HTTPConfig
}

// PathsConfig locates the daemon's state on disk.
type PathsConfig struct {
	DataDir    string `envconfig:"DATA_DIR" default:"."`
	ConfigFile string `envconfig:"CONFIG_FILE" default:"daemon_cfg.json"`
	AppsDir    string `envconfig:"APPS_DIR" default:"apps"`
	LogDir     string `envconfig:"LOG_DIR" default:""`
}

// LogConfig holds logging configuration. An empty Level defers to the
// log_level daemon option.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:""`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// InstallConfig bounds package installation. Zero means unbounded.
type InstallConfig struct {
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"0"`
	HookTimeout     time.Duration `envconfig:"HOOK_TIMEOUT" default:"0"`
	MaxArchiveBytes int64         `envconfig:"MAX_ARCHIVE_BYTES" default:"0"`
	LocalSources    bool          `envconfig:"LOCAL_SOURCES" default:"true"`
}

// SupervisorConfig holds process supervision settings.
type SupervisorConfig struct {
	PruneSchedule string `envconfig:"PRUNE_SCHEDULE" default:""`
	StopSignal    string `envconfig:"STOP_SIGNAL" default:"TERM"`
	WatchApps     bool   `envconfig:"WATCH_APPS" default:"false"`
}

// HTTPConfig holds HTTP surface settings.
type HTTPConfig struct {
	RateLimit      float64  `envconfig:"RATE_LIMIT" default:"0"`
	RateBurst      int      `envconfig:"RATE_BURST" default:"20"`
	CORSOrigins    []string `envconfig:"CORS_ORIGINS" default:"*"`
	MetricsEnabled bool     `envconfig:"METRICS_ENABLED" default:"true"`
	// ListenHost and ListenPort override the host and port options for one
	// run without persisting them
	ListenHost string `envconfig:"HOST" default:""`
	ListenPort int    `envconfig:"PORT" default:"0"`
	// MaxConnections caps concurrently accepted connections; 0 means unlimited
	MaxConnections int `envconfig:"MAX_CONNECTIONS" default:"0"`
}

// Load reads configuration from the environment, applying .env first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	sections := []any{&cfg.Paths, &cfg.Logging, &cfg.Install, &cfg.Supervisor, &cfg.HTTP}
	for _, section := range sections {
		if err := envconfig.Process(Prefix, section); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:    ".",
			ConfigFile: "daemon_cfg.json",
			AppsDir:    "apps",
		},
		Install: InstallConfig{
			LocalSources: true,
		},
		Supervisor: SupervisorConfig{
			StopSignal: "TERM",
		},
		HTTP: HTTPConfig{
			RateBurst:      20,
			CORSOrigins:    []string{"*"},
			MetricsEnabled: true,
		},
	}
}

// ConfigPath returns the daemon config file location.
func (c *Config) ConfigPath() string {
	return c.resolve(c.Paths.ConfigFile)
}

// AppsPath returns the apps directory location.
func (c *Config) AppsPath() string {
	return c.resolve(c.Paths.AppsDir)
}

// LogPath returns the app output directory, or "" when app output is inherited.
func (c *Config) LogPath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return c.resolve(c.Paths.LogDir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.DataDir, p)
}
