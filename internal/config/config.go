// Package config handles YAML configuration for aws-pipeline-monitor.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
	"github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor/sources"
)

const appName = "aws-pipeline-monitor"

var validate = validator.New()

// Config is the root configuration structure.
type Config struct {
	Profile       string                    `yaml:"profile"`
	Region        string                    `yaml:"region"`
	CacheDir      string                    `yaml:"cache_dir" validate:"required"`
	LogLevel      string                    `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Freshness     time.Duration             `yaml:"freshness" validate:"gt=0"`
	ProgressEvery int                       `yaml:"progress_every" validate:"gte=1"`
	Resources     map[string]ResourceConfig `yaml:"resources" validate:"dive"`
}

// ResourceConfig overrides the defaults of one resource type. Zero values
// keep the default.
type ResourceConfig struct {
	Freshness time.Duration `yaml:"freshness" validate:"gte=0"`
	Workers   WorkersConfig `yaml:"workers"`
	Stagger   time.Duration `yaml:"stagger" validate:"gte=0"`
	Retry     RetryConfig   `yaml:"retry"`
}

// WorkersConfig sizes the detail-fetch pool.
type WorkersConfig struct {
	Divisor int `yaml:"divisor" validate:"gte=0"`
	Min     int `yaml:"min" validate:"gte=0"`
	Max     int `yaml:"max" validate:"gte=0"`
}

// RetryConfig tunes backoff for transient errors.
type RetryConfig struct {
	MaxRetries *int          `yaml:"max_retries" validate:"omitempty,gte=0,lte=10"`
	BaseDelay  time.Duration `yaml:"base_delay" validate:"gte=0"`
	MaxDelay   time.Duration `yaml:"max_delay" validate:"gte=0"`
}

// Resource is the effective settings for one resource type.
type Resource struct {
	Type      pm.ResourceType
	Freshness time.Duration
	Budget    pm.WorkerBudget
	Retry     RetryConfig
}

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		CacheDir:      DefaultCacheDir(),
		LogLevel:      "info",
		Freshness:     pm.DefaultFreshness,
		ProgressEvery: pm.DefaultProgressEvery,
	}
}

// DefaultCacheDir returns the per-user cache directory for the tool.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return "." + appName
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks field constraints and that every resource override names
// a known resource type.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	for name, rc := range c.Resources {
		if _, err := pm.ParseResourceType(name); err != nil {
			errs = append(errs, fmt.Errorf("resources: %w", err))
			continue
		}
		if rc.Workers.Max > 0 && rc.Workers.Min > rc.Workers.Max {
			errs = append(errs, fmt.Errorf("resources.%s.workers: min %d exceeds max %d", name, rc.Workers.Min, rc.Workers.Max))
		}
	}
	return errors.Join(errs...)
}

// Resource merges the overrides for rt over its defaults.
func (c *Config) Resource(rt pm.ResourceType) Resource {
	r := Resource{
		Type:      rt,
		Freshness: c.Freshness,
		Budget:    sources.DefaultBudget(rt),
	}
	if r.Freshness <= 0 {
		r.Freshness = pm.DefaultFreshness
	}

	rc, ok := c.Resources[rt.String()]
	if !ok {
		return r
	}

	if rc.Freshness > 0 {
		r.Freshness = rc.Freshness
	}
	if rc.Workers.Divisor > 0 {
		r.Budget.Divisor = rc.Workers.Divisor
	}
	if rc.Workers.Min > 0 {
		r.Budget.Min = rc.Workers.Min
	}
	if rc.Workers.Max > 0 {
		r.Budget.Max = rc.Workers.Max
	}
	if rc.Stagger > 0 {
		r.Budget.Stagger = rc.Stagger
	}
	r.Retry = rc.Retry
	return r
}

// Apply overlays the retry overrides on a preset policy.
func (rc RetryConfig) Apply(p pm.RetryPolicy) pm.RetryPolicy {
	if rc.MaxRetries != nil {
		p.MaxRetries = *rc.MaxRetries
	}
	if rc.BaseDelay > 0 {
		p.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		p.MaxDelay = rc.MaxDelay
	}
	return p
}
