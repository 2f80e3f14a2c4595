package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/observability"
)

// ErrNoDialect is returned when a client is built without a dialect.
var ErrNoDialect = errors.New("llm: dialect is required")

// Client is a config-driven HTTP model client. The Dialect handles the
// provider-specific request and response mapping; retries, breakers and
// timeouts are applied around the model operation, not inside the client.
type Client struct {
	http    *resty.Client
	dialect Dialect
	cfg     Config
}

// New creates a client from cfg using the global dialect registry.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := GetDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	return newClient(dialect, cfg)
}

// NewWithDialect creates a client with an explicit dialect instance.
func NewWithDialect(dialect Dialect, cfg Config) (*Client, error) {
	if dialect == nil {
		return nil, ErrNoDialect
	}
	cfg.Dialect = dialect.Name()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newClient(dialect, cfg)
}

func newClient(dialect Dialect, cfg Config) (*Client, error) {
	tlsConfig, err := cfg.TLS.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	if tlsConfig != nil {
		client.SetTLSClientConfig(tlsConfig)
	}
	return &Client{http: client, dialect: dialect, cfg: cfg}, nil
}

// Name returns the client name.
func (c *Client) Name() string { return c.cfg.Name }

// Dialect returns the dialect used by this client.
func (c *Client) Dialect() Dialect { return c.dialect }

// Complete sends a completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	c.applyDefaults(&req)

	body, err := c.dialect.BuildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(c.dialect.ChatPath())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.ServiceUnavailable(c.cfg.Name).WithCause(err)
	}
	if err := statusError(c.cfg.Name, resp); err != nil {
		return nil, err
	}

	result, err := c.dialect.ParseResponse(resp.Body())
	if err != nil {
		return nil, apperrors.ExternalServiceError(c.cfg.Name, err)
	}
	return result, nil
}

// CheckHealth calls the dialect's health endpoint.
func (c *Client) CheckHealth(ctx context.Context) observability.Health {
	h := observability.Health{Name: c.cfg.Name, Status: observability.HealthStatusUp}
	path := c.dialect.HealthPath()
	if path == "" {
		return h
	}
	resp, err := c.http.R().SetContext(ctx).Get(path)
	switch {
	case err != nil:
		h.Status, h.Message = observability.HealthStatusDown, err.Error()
	case resp.IsError():
		h.Status, h.Message = observability.HealthStatusDegraded, resp.Status()
	}
	return h
}

func (c *Client) applyDefaults(req *CompletionRequest) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if req.Temperature == 0 {
		req.Temperature = c.cfg.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}
}

// statusError maps an HTTP error status to an AppError.
func statusError(name string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code < 400 {
		return nil
	}
	detail := fmt.Errorf("%s: %s", resp.Status(), truncate(resp.String(), 256))
	switch {
	case code == http.StatusTooManyRequests:
		return apperrors.RateLimited().WithCause(detail)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.Unauthorized(fmt.Sprintf("%s rejected the credentials", name)).WithCause(detail)
	case code >= 500:
		return apperrors.ExternalServiceError(name, detail)
	default:
		return apperrors.InvalidInput("", fmt.Sprintf("%s rejected the request", name)).WithCause(detail)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
