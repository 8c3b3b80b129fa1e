package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix used by Load.
const Prefix = "AGENTROPIC"

// Config holds all process configuration loaded from environment variables.
// Runtime tuning lives in the YAML file named by RuntimeConfigPath.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Runtime
	RuntimeConfigPath string        `envconfig:"RUNTIME_CONFIG"` // optional YAML file; defaults apply when empty
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Status API
	StatusListenAddr string `envconfig:"STATUS_LISTEN_ADDR" default:":8090"`
	StatusAuthMode   string `envconfig:"STATUS_AUTH_MODE" default:"api-key"` // "none", "api-key" or "jwt"
	StatusAPIKey     string `envconfig:"STATUS_API_KEY"`
	StatusJWTSecret  string `envconfig:"STATUS_JWT_SECRET"`

	// Tracing
	TraceStdout bool `envconfig:"TRACE_STDOUT" default:"false"`

	// Demo scenario
	DemoCouriers   int `envconfig:"DEMO_COURIERS" default:"3"`
	DemoDeliveries int `envconfig:"DEMO_DELIVERIES" default:"6"`
}

// IsDevelopment reports whether console logging should be used.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// StatusEnabled returns true if the status API should be started.
func (c *Config) StatusEnabled() bool {
	return c.StatusListenAddr != ""
}

// Validate checks combinations envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StatusAuthMode {
	case "none":
	case "api-key":
		if c.StatusEnabled() && c.StatusAPIKey == "" {
			return fmt.Errorf("STATUS_API_KEY is required when STATUS_AUTH_MODE=api-key")
		}
	case "jwt":
		if c.StatusEnabled() && c.StatusJWTSecret == "" {
			return fmt.Errorf("STATUS_JWT_SECRET is required when STATUS_AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown STATUS_AUTH_MODE %q", c.StatusAuthMode)
	}
	if c.DemoCouriers < 1 {
		return fmt.Errorf("DEMO_COURIERS must be at least 1, got %d", c.DemoCouriers)
	}
	if c.DemoDeliveries < 0 {
		return fmt.Errorf("DEMO_DELIVERIES must not be negative, got %d", c.DemoDeliveries)
	}
	return nil
}

// Load reads configuration from AGENTROPIC_* environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix(Prefix)
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
