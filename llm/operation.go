package llm

import (
	"context"
	"fmt"

	"github.com/kbukum/opkit/op"
)

// OperationOption sets request defaults on a model operation.
type OperationOption func(*CompletionRequest)

// WithModel sets the model used when the request does not name one.
func WithModel(model string) OperationOption {
	return func(r *CompletionRequest) { r.Model = model }
}

// WithSystemPrompt sets the system prompt used when the request has none.
func WithSystemPrompt(prompt string) OperationOption {
	return func(r *CompletionRequest) { r.SystemPrompt = prompt }
}

// WithTemperature sets the temperature used when the request has none.
func WithTemperature(t float64) OperationOption {
	return func(r *CompletionRequest) { r.Temperature = t }
}

// WithMaxTokens sets the token limit used when the request has none.
func WithMaxTokens(n int) OperationOption {
	return func(r *CompletionRequest) { r.MaxTokens = n }
}

// NewOperation adapts p into an op.Operation. The output is a
// CompletionResponse, which parser.Text reads through its Text method.
func NewOperation(name string, p Provider, opts ...OperationOption) op.Operation {
	if p == nil {
		panic("llm: NewOperation requires a provider")
	}
	if name == "" {
		name = p.Name()
	}
	var defaults CompletionRequest
	for _, opt := range opts {
		opt(&defaults)
	}

	return op.Func(name, func(ctx context.Context, input any) (any, error) {
		req, err := RequestFrom(input)
		if err != nil {
			return nil, err
		}
		merge(&req, defaults)

		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		return *resp, nil
	})
}

func merge(req *CompletionRequest, defaults CompletionRequest) {
	if req.Model == "" {
		req.Model = defaults.Model
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = defaults.SystemPrompt
	}
	if req.Temperature == 0 {
		req.Temperature = defaults.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = defaults.MaxTokens
	}
}

// RequestFrom converts a stage payload into a CompletionRequest. It accepts
// a prompt string, []Message, CompletionRequest (or pointer), a value with a
// Text() method, or an envelope with "messages" or "prompt" and optional
// "system" and "model" keys.
func RequestFrom(input any) (CompletionRequest, error) {
	switch v := input.(type) {
	case CompletionRequest:
		return v, nil
	case *CompletionRequest:
		if v == nil {
			return CompletionRequest{}, fmt.Errorf("llm: nil request")
		}
		return *v, nil
	case string:
		return userRequest(v), nil
	case []Message:
		return CompletionRequest{Messages: v}, nil
	case interface{ Text() string }:
		return userRequest(v.Text()), nil
	}

	env, ok := op.As[op.Envelope](input)
	if !ok || env == nil {
		return CompletionRequest{}, &op.TypeMismatch{Want: "prompt, messages or llm.CompletionRequest", Got: fmt.Sprintf("%T", input)}
	}
	return requestFromEnvelope(env)
}

func userRequest(prompt string) CompletionRequest {
	return CompletionRequest{Messages: []Message{{Role: RoleUser, Content: prompt}}}
}

func requestFromEnvelope(env op.Envelope) (CompletionRequest, error) {
	var req CompletionRequest
	switch msgs := env["messages"].(type) {
	case []Message:
		req.Messages = msgs
	case []any:
		for i, m := range msgs {
			msg, err := messageFrom(m)
			if err != nil {
				return req, fmt.Errorf("llm: messages[%d]: %w", i, err)
			}
			req.Messages = append(req.Messages, msg)
		}
	case nil:
		prompt, ok := env.String("prompt")
		if !ok {
			return req, fmt.Errorf("llm: envelope needs a \"messages\" list or a \"prompt\" string")
		}
		req.Messages = []Message{{Role: RoleUser, Content: prompt}}
	default:
		return req, fmt.Errorf("llm: unsupported messages type %T", msgs)
	}

	req.SystemPrompt, _ = env.String("system")
	req.Model, _ = env.String("model")
	return req, nil
}

func messageFrom(v any) (Message, error) {
	if m, ok := v.(Message); ok {
		return m, nil
	}
	env, ok := op.As[op.Envelope](v)
	if !ok {
		return Message{}, fmt.Errorf("expected a message object, got %T", v)
	}
	role, _ := env.String("role")
	content, ok := env.String("content")
	if !ok {
		return Message{}, fmt.Errorf("message content must be a string")
	}
	if role == "" {
		role = RoleUser
	}
	return Message{Role: role, Content: content}, nil
}
