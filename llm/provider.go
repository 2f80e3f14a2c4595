package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider is implemented by model backends.
type Provider interface {
	// Name identifies the provider instance.
	Name() string
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// NewProvider builds the provider selected by cfg.Dialect. The "echo"
// dialect needs no server and answers with the request's user content.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Dialect == EchoDialect {
		return Echo(), nil
	}
	return New(cfg)
}

// EchoDialect selects the Echo provider in configuration.
const EchoDialect = "echo"

// Echo returns a provider that replies with the content of the user
// messages joined by newlines. It is useful offline and in tests.
func Echo() Provider { return echoProvider{} }

type echoProvider struct{}

func (echoProvider) Name() string { return EchoDialect }

func (echoProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var parts []string
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			parts = append(parts, m.Content)
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("echo: request has no user message")
	}
	content := strings.Join(parts, "\n")
	return &CompletionResponse{
		Content: content,
		Model:   EchoDialect,
		Usage:   Usage{CompletionTokens: len(strings.Fields(content)), TotalTokens: len(strings.Fields(content))},
	}, nil
}
