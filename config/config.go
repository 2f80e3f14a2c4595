package config

import (
	"fmt"

	"github.com/kbukum/opkit/cache"
	"github.com/kbukum/opkit/llm"
	"github.com/kbukum/opkit/observability"
	"github.com/kbukum/opkit/resilience"
	"github.com/kbukum/opkit/server"
	"github.com/kbukum/opkit/validation"
)

// Config is the root configuration of an opkit process.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Runtime      RuntimeConfig `yaml:"runtime" mapstructure:"runtime"`
	LLM          llm.Config    `yaml:"llm" mapstructure:"llm"`
	Cache        cache.Config  `yaml:"cache" mapstructure:"cache"`
	Server       server.Config `yaml:"server" mapstructure:"server"`
	Tracing      TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	PipelinesDir string        `yaml:"pipelines_dir" mapstructure:"pipelines_dir"`
}

// RuntimeConfig holds the defaults applied to every built pipeline.
type RuntimeConfig struct {
	// MaxParallel bounds branch concurrency in parallel nodes. Zero means unlimited.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel" validate:"gte=0"`

	resilience.Config `yaml:",inline" mapstructure:",squash"`
}

// TracingConfig enables OpenTelemetry export of operation spans and metrics.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	observability.Config `yaml:",inline" mapstructure:",squash"`
}

// Load reads configuration for appName, applies defaults and validates it.
func Load(appName string, opts ...LoaderOption) (*Config, error) {
	cfg := &Config{}
	if err := LoadInto(appName, cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = appName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset values across all sections.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Runtime.ApplyDefaults()
	c.LLM.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Tracing.applyDefaults(c.ServiceConfig)
	if c.PipelinesDir == "" {
		c.PipelinesDir = "./pipelines"
	}
}

// Validate checks struct tags and then each section's own rules.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Runtime.Validate(); err != nil {
		return fmt.Errorf("config.runtime: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("config.llm: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("config.cache: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("config.tracing.endpoint is required when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("config.tracing.sample_rate must be between 0 and 1 (got: %v)", c.Tracing.SampleRate)
		}
	}
	return nil
}

func (t *TracingConfig) applyDefaults(svc ServiceConfig) {
	defaults := observability.DefaultConfig(svc.Name)
	if t.ServiceName == "" {
		t.ServiceName = defaults.ServiceName
	}
	if t.ServiceVersion == "" {
		t.ServiceVersion = svc.Version
	}
	if t.Environment == "" {
		t.Environment = svc.Environment
	}
	if t.Endpoint == "" {
		t.Endpoint = defaults.Endpoint
	}
	if t.SampleRate == 0 {
		t.SampleRate = defaults.SampleRate
	}
	if t.Interval == 0 {
		t.Interval = defaults.Interval
	}
}

// Redacted returns a copy safe to print, with secrets masked.
func (c Config) Redacted() Config {
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.Server.JWTSecret = mask(c.Server.JWTSecret)
	c.Cache.Password = mask(c.Cache.Password)
	if len(c.LLM.Headers) > 0 {
		headers := make(map[string]string, len(c.LLM.Headers))
		for k, v := range c.LLM.Headers {
			headers[k] = mask(v)
		}
		c.LLM.Headers = headers
	}
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
