// Package ollama registers the "ollama" dialect for Ollama's native chat API.
//
//	import _ "github.com/kbukum/opkit/llm/ollama"
package ollama

import (
	"encoding/json"
	"fmt"

	"github.com/kbukum/opkit/llm"
)

// Name is the registered dialect name.
const Name = "ollama"

func init() {
	llm.RegisterDialect(Name, Dialect{})
}

// Dialect maps requests onto POST /api/chat.
type Dialect struct{}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []llm.Message  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   any            `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (Dialect) Name() string       { return Name }
func (Dialect) ChatPath() string   { return "/api/chat" }
func (Dialect) HealthPath() string { return "/api/tags" }

// BuildRequest maps temperature and max tokens into Ollama options. A
// "format" entry in Extra enables JSON mode ("json" or a JSON schema).
func (Dialect) BuildRequest(req llm.CompletionRequest) (any, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	body := chatRequest{Model: req.Model, Messages: req.AllMessages()}

	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		body.Options = opts
	}
	if f, ok := req.Extra["format"]; ok {
		body.Format = f
	}
	return body, nil
}

func (Dialect) ParseResponse(body []byte) (*llm.CompletionResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	return &llm.CompletionResponse{
		Content: resp.Message.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}
