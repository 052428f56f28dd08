// File: facade/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime configuration grouping every subsystem, loadable from YAML.

package facade

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/arena"
	"github.com/momentics/hioload-rt/pool"
	"github.com/momentics/hioload-rt/scheduler"
)

// Global allocator strategies.
const (
	AllocatorPassthrough = "passthrough"
	AllocatorTracking    = "tracking"
	AllocatorPooled      = "pooled"
)

// Config holds parameters immutable per run. Changes published through
// Control after New only affect the log level.
type Config struct {
	Name string `yaml:"name"`
	// Allocator selects the global strategy: passthrough, tracking or pooled.
	Allocator string `yaml:"allocator"`
	// LogLevel is one of none, fatal, error, info, debug.
	LogLevel string `yaml:"logLevel"`
	// MetricsInterval refreshes scheduler and allocator metrics; zero
	// disables the refresh timer.
	MetricsInterval time.Duration `yaml:"metricsInterval"`

	Scheduler scheduler.Config `yaml:"scheduler"`
	Pool      pool.Config      `yaml:"pool"`
	Arena     arena.Config     `yaml:"arena"`
	Tracing   TracingConfig    `yaml:"tracing"`
}

// TracingConfig enables OpenTelemetry spans around executor tasks and
// lifecycle steps.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Output is a file path; empty means stdout.
	Output string `yaml:"output"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Name:            "hioload-rt",
		Allocator:       AllocatorPassthrough,
		LogLevel:        "info",
		MetricsInterval: time.Second,
		Scheduler:       scheduler.DefaultConfig(),
		Pool:            pool.DefaultConfig(),
		Arena:           arena.DefaultConfig(),
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Allocator {
	case AllocatorPassthrough, AllocatorTracking, AllocatorPooled:
	default:
		return api.NewError(api.ErrCodeInvalidConfig, "facade: unknown allocator").
			WithContext("allocator", c.Allocator)
	}
	if c.MetricsInterval < 0 {
		return errors.Wrapf(api.ErrInvalidConfig, "facade: metricsInterval %v", c.MetricsInterval)
	}
	if err := c.Scheduler.Normalized().Validate(); err != nil {
		return err
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	return c.Arena.Validate()
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "facade: parse config")
	}
	cfg.Allocator = strings.ToLower(cfg.Allocator)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "facade: load config")
	}
	return ParseConfig(data)
}
