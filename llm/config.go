package llm

import (
	"fmt"
	"time"

	"github.com/kbukum/opkit/security"
)

// Config holds configuration for a model client. The Dialect field selects
// the provider mapping.
type Config struct {
	// Name identifies this client instance (e.g., "primary-llm").
	Name string `yaml:"name" mapstructure:"name" json:"name"`

	// Dialect selects the provider mapping (e.g., "ollama", "openai", "echo").
	Dialect string `yaml:"dialect" mapstructure:"dialect" json:"dialect"`

	// BaseURL is the provider's API base URL (e.g., "http://localhost:11434").
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// Model is the default model to use.
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// APIKey is sent as a Bearer token when set.
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"-"`

	// Temperature is the default sampling temperature (0.0-1.0).
	Temperature float64 `yaml:"temperature" mapstructure:"temperature" json:"temperature"`

	// MaxTokens is the default maximum tokens for responses. 0 means provider default.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" json:"max_tokens"`

	// Timeout for HTTP requests. Defaults to 120s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`

	// Headers are additional HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers" mapstructure:"headers" json:"headers"`

	// TLS configures certificate verification and client certificates for
	// the provider endpoint.
	TLS security.TLSConfig `yaml:"tls" mapstructure:"tls" json:"tls"`
}

// ApplyDefaults sets default values for unset config fields.
func (c *Config) ApplyDefaults() {
	if c.Dialect == "" {
		c.Dialect = EchoDialect
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Name == "" {
		c.Name = c.Dialect + "-llm"
	}
}

// Validate checks the configuration for a usable client.
func (c *Config) Validate() error {
	if c.Dialect == EchoDialect {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("llm: base_url is required for dialect %q", c.Dialect)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm: temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("llm: max_tokens must not be negative")
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}
