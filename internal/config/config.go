// Package config loads and validates the blockwatch service configuration
// from a YAML file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	// DefaultServerAddress is the default status API listen address.
	DefaultServerAddress = ":8090"
	// DefaultReadTimeout is the default HTTP read timeout.
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default HTTP write timeout.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultHistoryLimit is the maximum number of jobs retained in the
	// reconciler's recent-history window.
	DefaultHistoryLimit = 50
	// DefaultPurgeGrace is how long denormalized projections outlive a
	// terminal job before being purged.
	DefaultPurgeGrace = 5 * time.Second
	// DefaultHydrateTimeout is the default timeout for hydration REST calls.
	DefaultHydrateTimeout = 10 * time.Second
	// DefaultReconnectDelay is the initial delay between reconnect attempts.
	DefaultReconnectDelay = 1 * time.Second
	// DefaultMaxReconnectDelay caps the reconnect backoff.
	DefaultMaxReconnectDelay = 5 * time.Second
)

// Config is the top-level service configuration.
type Config struct {
	Debug     bool            `yaml:"debug"` // controls log level and format
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Hydrate   HydrateConfig   `yaml:"hydrate"`
	Watch     WatchConfig     `yaml:"watch"`
	Transport TransportConfig `yaml:"transport"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8090"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 30s
}

// RedisConfig configures the shared Pub/Sub connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HydrateConfig configures the REST client used for initial hydration.
type HydrateConfig struct {
	BaseURL string        `yaml:"base_url"` // pipeline backend, e.g. "http://localhost:5000"
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"` // default: 10s
}

// WatchConfig configures the observer scope and reconciler behavior.
type WatchConfig struct {
	// OwnerID limits the default observer to one user's jobs. Ignored when
	// All is true.
	OwnerID string `yaml:"owner_id"`
	// All subscribes to every job (administrator view).
	All bool `yaml:"all"`
	// HistoryLimit caps the recent-history window. Default: 50.
	HistoryLimit int `yaml:"history_limit"`
	// PurgeGrace is how long projections outlive a terminal job. Default: 5s.
	PurgeGrace time.Duration `yaml:"purge_grace"`
}

// TransportConfig configures the connection reconnect policy.
type TransportConfig struct {
	// ReconnectDelay is the initial backoff delay. Default: 1s.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// MaxReconnectDelay caps the backoff. Default: 5s.
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	// MaxAttempts bounds consecutive failed reconnects before the connection
	// gives up and reports failed. Zero means retry forever.
	MaxAttempts int `yaml:"max_attempts"`
}

// Validate checks the server configuration and fills defaults.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		c.Address = DefaultServerAddress
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return nil
}

// Validate checks the configuration and returns an error if it cannot be
// used.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Watch.All && c.Watch.OwnerID != "" {
		return errors.New("watch.all and watch.owner_id are mutually exclusive")
	}
	if c.Watch.HistoryLimit < 0 {
		return fmt.Errorf("watch.history_limit must not be negative, got %d", c.Watch.HistoryLimit)
	}
	if c.Transport.MaxAttempts < 0 {
		return fmt.Errorf("transport.max_attempts must not be negative, got %d", c.Transport.MaxAttempts)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Watch.HistoryLimit == 0 {
		cfg.Watch.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Watch.PurgeGrace == 0 {
		cfg.Watch.PurgeGrace = DefaultPurgeGrace
	}
	if cfg.Hydrate.Timeout == 0 {
		cfg.Hydrate.Timeout = DefaultHydrateTimeout
	}
	if cfg.Transport.ReconnectDelay == 0 {
		cfg.Transport.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Transport.MaxReconnectDelay == 0 {
		cfg.Transport.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
}

// overrideWithEnvVars applies environment overrides on top of the file.
func overrideWithEnvVars(cfg *Config) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if baseURL := os.Getenv("BLOCKWATCH_API_URL"); baseURL != "" {
		cfg.Hydrate.BaseURL = baseURL
	}
	if apiKey := os.Getenv("BLOCKWATCH_API_KEY"); apiKey != "" {
		cfg.Hydrate.APIKey = apiKey
	}
	if owner := os.Getenv("BLOCKWATCH_OWNER_ID"); owner != "" {
		cfg.Watch.OwnerID = owner
	}
	if all := os.Getenv("BLOCKWATCH_ALL"); all != "" {
		cfg.Watch.All = parseBool(all)
	}
	if port := os.Getenv("BLOCKWATCH_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. A .env file in the working directory
// is loaded first if present. An empty path falls back to ./config.yml, and
// a missing fallback file is fine: everything can come from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	defaulted := false
	if path == "" {
		path = "config.yml"
		defaulted = true
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case defaulted && os.IsNotExist(err):
		// No config file, rely on defaults and environment.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config validation: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
