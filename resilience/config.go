package resilience

import (
	"fmt"
	"time"

	"github.com/kbukum/opkit/op"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Values below 2 disable retries.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// InitialBackoff is the delay before the first retry; it doubles after each attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	// Jitter adds up to this much random delay.
	Jitter time.Duration `yaml:"jitter" mapstructure:"jitter"`
	// RetryIf decides whether a failure is retried. Defaults to Retryable.
	RetryIf func(error) bool `yaml:"-" mapstructure:"-"`
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32 `yaml:"max_failures" mapstructure:"max_failures"`
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32 `yaml:"half_open_requests" mapstructure:"half_open_requests"`
}

// RateLimitConfig configures a token-bucket rate limiter.
type RateLimitConfig struct {
	// RPS is the sustained rate. Zero disables the limiter.
	RPS float64 `yaml:"rps" mapstructure:"rps"`
	// Burst is the bucket size.
	Burst int `yaml:"burst" mapstructure:"burst"`
}

// BulkheadConfig configures a concurrency limit.
type BulkheadConfig struct {
	// MaxConcurrent is the number of simultaneous invocations. Zero disables the bulkhead.
	MaxConcurrent int64 `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// MaxWait bounds the wait for a slot. Zero waits as long as the context allows.
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
}

// Config groups every pattern applied by Wrap.
type Config struct {
	// Timeout bounds each attempt. Zero means none.
	Timeout        time.Duration        `yaml:"timeout" mapstructure:"timeout"`
	Retry          RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" mapstructure:"rate_limit"`
	Bulkhead       BulkheadConfig       `yaml:"bulkhead" mapstructure:"bulkhead"`
}

// DefaultConfig returns a configuration that applies nothing: no timeout,
// a single attempt, and no breaker, limiter or bulkhead.
func DefaultConfig() Config {
	c := Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset tuning values without enabling any pattern.
func (c *Config) ApplyDefaults() {
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 1
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = 100 * time.Millisecond
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = 5 * time.Second
	}
	if c.CircuitBreaker.MaxFailures == 0 {
		c.CircuitBreaker.MaxFailures = 5
	}
	if c.CircuitBreaker.OpenTimeout == 0 {
		c.CircuitBreaker.OpenTimeout = 30 * time.Second
	}
	if c.CircuitBreaker.HalfOpenRequests == 0 {
		c.CircuitBreaker.HalfOpenRequests = 1
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
}

// Validate rejects negative or inconsistent values.
func (c *Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("resilience: timeout must not be negative")
	case c.Retry.MaxAttempts < 0:
		return fmt.Errorf("resilience: retry.max_attempts must not be negative")
	case c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 || c.Retry.Jitter < 0:
		return fmt.Errorf("resilience: retry backoff values must not be negative")
	case c.Retry.MaxBackoff > 0 && c.Retry.InitialBackoff > c.Retry.MaxBackoff:
		return fmt.Errorf("resilience: retry.initial_backoff exceeds retry.max_backoff")
	case c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0:
		return fmt.Errorf("resilience: rate_limit values must not be negative")
	case c.Bulkhead.MaxConcurrent < 0 || c.Bulkhead.MaxWait < 0:
		return fmt.Errorf("resilience: bulkhead values must not be negative")
	}
	return nil
}

// Wrap applies every configured pattern to o. A default Config returns o
// unchanged.
func Wrap(o op.Operation, cfg Config) op.Operation {
	o = Timeout(o, cfg.Timeout)
	o = Retry(o, cfg.Retry)
	if cfg.CircuitBreaker.Enabled {
		o = CircuitBreaker(o, cfg.CircuitBreaker)
	}
	o = Bulkhead(o, cfg.Bulkhead)
	o = RateLimit(o, cfg.RateLimit)
	return o
}
