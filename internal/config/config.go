// Package config loads and validates the gateway configuration.
//
// DESIGN: All configuration comes from YAML files. The only defaults are the
// documented ones applied in applyDefaults (usage bias, trace limits).
// Everything else must be explicit so deployments stay auditable.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - providers.go:  Upstream providers and capability allow-lists
//   - monitoring.go: Logging and metrics settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Total-only usage attribution policies.
const (
	BiasInput  = "input"
	BiasOutput = "output"
	BiasSplit  = "split"
)

// Trace defaults.
const (
	DefaultTraceTTL        = 15 * time.Minute
	DefaultTraceMaxEntries = 500
)

// Config is the root configuration for the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`      // HTTP server settings
	Monitoring MonitoringConfig `yaml:"monitoring"`  // Logging and metrics
	DebugTrace DebugTraceConfig `yaml:"debug_trace"` // Stage diff side channel
	Usage      UsageConfig      `yaml:"usage"`       // Usage normalization policy
	Providers  ProvidersConfig  `yaml:"providers"`   // Upstream providers
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
	RateLimit    int           `yaml:"rate_limit"`    // Requests per second per client IP, 0 disables
}

// DebugTraceConfig controls the debug trace store.
type DebugTraceConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`         // How long traces are kept
	MaxEntries int           `yaml:"max_entries"` // Per-request entry cap
}

// UsageConfig controls usage normalization.
type UsageConfig struct {
	// TotalOnlyBias decides where a total-only usage report is attributed:
	// input (default), output, or split.
	TotalOnlyBias string `yaml:"total_only_bias"`
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) > 2 {
			return parts[2]
		}
		return ""
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Usage.TotalOnlyBias == "" {
		c.Usage.TotalOnlyBias = BiasInput
	}
	if c.DebugTrace.TTL == 0 {
		c.DebugTrace.TTL = DefaultTraceTTL
	}
	if c.DebugTrace.MaxEntries == 0 {
		c.DebugTrace.MaxEntries = DefaultTraceMaxEntries
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}

	switch c.Usage.TotalOnlyBias {
	case BiasInput, BiasOutput, BiasSplit:
	default:
		return fmt.Errorf("invalid usage.total_only_bias: %q (must be input, output or split)", c.Usage.TotalOnlyBias)
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if c.DebugTrace.TTL < 0 {
		return fmt.Errorf("debug_trace.ttl must not be negative")
	}
	if c.DebugTrace.MaxEntries < 0 {
		return fmt.Errorf("debug_trace.max_entries must not be negative")
	}

	if err := c.Monitoring.Validate(); err != nil {
		return err
	}

	return c.Providers.Validate()
}
