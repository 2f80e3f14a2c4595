// Package openai registers the "openai" dialect for OpenAI-compatible chat
// completion servers.
//
//	import _ "github.com/kbukum/opkit/llm/openai"
package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kbukum/opkit/llm"
)

// Name is the registered dialect name.
const Name = "openai"

func init() {
	llm.RegisterDialect(Name, Dialect{})
}

// Dialect maps requests onto POST /v1/chat/completions.
type Dialect struct{}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []llm.Message `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage llm.Usage `json:"usage"`
}

func (Dialect) Name() string       { return Name }
func (Dialect) ChatPath() string   { return "/v1/chat/completions" }
func (Dialect) HealthPath() string { return "/v1/models" }

// BuildRequest passes a "response_format" entry in Extra through unchanged.
func (Dialect) BuildRequest(req llm.CompletionRequest) (any, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	return chatRequest{
		Model:          req.Model,
		Messages:       req.AllMessages(),
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.Extra["response_format"],
	}, nil
}

func (Dialect) ParseResponse(body []byte) (*llm.CompletionResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}
