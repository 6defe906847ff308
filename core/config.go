package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the framework-level configuration shared by the pipeline
// packages. It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables
//  3. Functional options, applied in the order given (highest priority).
//     WithConfigFile merges a file at its position in that list, so the
//     file overrides environment variables and earlier options.
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithName("payment-pipeline"),
//	    core.WithLogLevel("debug"),
//	)
type Config struct {
	// Name identifies the process in logs and telemetry
	Name string `yaml:"name"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry configuration
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Retry holds default retry parameters. They are loaded and validated
	// here; no other package of the module reads them.
	Retry RetryDefaults `yaml:"retry"`

	logger Logger
}

// LoggingConfig controls the ProductionLogger
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout or stderr
}

// TelemetryConfig controls trace/metric export
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP/gRPC endpoint, e.g. localhost:4317
	Stdout   bool   `yaml:"stdout"`   // export spans to stdout instead of OTLP
}

// RetryDefaults parameterizes the default retry policy
type RetryDefaults struct {
	Limit        int           `yaml:"limit"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DefaultConfig returns the baseline configuration
func DefaultConfig() *Config {
	return &Config{
		Name: "pipeline",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
		Retry: RetryDefaults{
			Limit:        3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
	}
}

// Option is a functional configuration option
type Option func(*Config) error

// WithName sets the service name used in logs and telemetry
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty: %w", ErrConfiguration)
		}
		c.Name = name
		return nil
	}
}

// WithLogLevel sets the logging threshold
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "error":
			c.Logging.Level = strings.ToLower(level)
			return nil
		}
		return fmt.Errorf("unknown log level %q: %w", level, ErrConfiguration)
	}
}

// WithLogFormat selects json or text output
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		if format != "json" && format != "text" {
			return fmt.Errorf("unknown log format %q: %w", format, ErrConfiguration)
		}
		c.Logging.Format = format
		return nil
	}
}

// WithTelemetryEndpoint enables telemetry export to the given OTLP endpoint
func WithTelemetryEndpoint(endpoint string) Option {
	return func(c *Config) error {
		if endpoint == "" {
			return fmt.Errorf("telemetry endpoint cannot be empty: %w", ErrConfiguration)
		}
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithConfigFile loads settings from a YAML or JSON file before the
// remaining options apply
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.loadFromFile(path)
	}
}

// WithLogger installs a pre-built logger, bypassing ProductionLogger creation
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// WithRetryDefaults overrides the default retry parameters
func WithRetryDefaults(limit int, initial, max time.Duration) Option {
	return func(c *Config) error {
		if limit < 0 {
			return fmt.Errorf("retry limit cannot be negative: %w", ErrConfiguration)
		}
		c.Retry = RetryDefaults{Limit: limit, InitialDelay: initial, MaxDelay: max}
		return nil
	}
}

// NewConfig builds a Config from defaults, environment, and options
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = NewProductionLogger(cfg.Logging, cfg.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Logger returns the configured logger
func (c *Config) Logger() Logger {
	if c.logger == nil {
		return &NoOpLogger{}
	}
	return c.logger
}

// Validate checks the final configuration for consistency
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required: %w", ErrMissingConfiguration)
	}
	if c.Retry.Limit < 0 {
		return fmt.Errorf("retry limit cannot be negative: %w", ErrConfiguration)
	}
	if c.Retry.MaxDelay > 0 && c.Retry.InitialDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry initial delay exceeds max delay: %w", ErrConfiguration)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" && !c.Telemetry.Stdout {
		return fmt.Errorf("telemetry enabled without endpoint: %w", ErrMissingConfiguration)
	}
	return nil
}

// loadFromFile merges a YAML or JSON file into the config. YAML is a
// superset of JSON so both parse through the yaml decoder.
func (c *Config) loadFromFile(path string) error {
	ext := filepath.Ext(path)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format %q: %w", ext, ErrConfiguration)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv applies PIPELINE_* environment variables
func (c *Config) loadFromEnv() error {
	if v := os.Getenv("PIPELINE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("PIPELINE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PIPELINE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PIPELINE_OTEL_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("PIPELINE_RETRY_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PIPELINE_RETRY_LIMIT %q: %w", v, ErrConfiguration)
		}
		c.Retry.Limit = limit
	}
	return nil
}
