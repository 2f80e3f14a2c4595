// Package prompt renders stage input into model prompts with text/template
// and the sprig function library. Templates are parsed once at construction
// and fail on missing keys.
package prompt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/kbukum/opkit/llm"
	"github.com/kbukum/opkit/op"
)

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", name, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, input any) (string, error) {
	data := input
	if env, ok := input.(op.Envelope); ok {
		data = map[string]any(env)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return buf.String(), nil
}

// Template returns an Operation rendering its input through text. Envelope
// keys are addressed as {{ .key }}; scalar input is {{ . }}.
func Template(name, text string) (op.Operation, error) {
	tmpl, err := parse(name, text)
	if err != nil {
		return nil, err
	}
	return op.Func(name, func(_ context.Context, input any) (any, error) {
		return render(tmpl, input)
	}), nil
}

// MustTemplate is like Template but panics on a parse error.
func MustTemplate(name, text string) op.Operation {
	o, err := Template(name, text)
	if err != nil {
		panic(err)
	}
	return o
}

// Message is a role-tagged message template.
type Message struct {
	Role string `yaml:"role" json:"role"`
	Text string `yaml:"text" json:"text"`
}

// System declares a system message template.
func System(text string) Message { return Message{Role: llm.RoleSystem, Text: text} }

// User declares a user message template.
func User(text string) Message { return Message{Role: llm.RoleUser, Text: text} }

// Assistant declares an assistant message template.
func Assistant(text string) Message { return Message{Role: llm.RoleAssistant, Text: text} }

// ErrNoMessages is returned when Chat is built without message templates.
var ErrNoMessages = errors.New("prompt: chat requires at least one message")

// Chat returns an Operation rendering each message template against its
// input and producing an llm.CompletionRequest.
func Chat(name string, messages ...Message) (op.Operation, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	roles := make([]string, len(messages))
	tmpls := make([]*template.Template, len(messages))
	for i, m := range messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("prompt: message %d has unknown role %q", i, m.Role)
		}
		tmpl, err := parse(fmt.Sprintf("%s[%d]", name, i), m.Text)
		if err != nil {
			return nil, err
		}
		roles[i], tmpls[i] = m.Role, tmpl
	}

	return op.Func(name, func(_ context.Context, input any) (any, error) {
		req := llm.CompletionRequest{Messages: make([]llm.Message, len(tmpls))}
		for i, tmpl := range tmpls {
			content, err := render(tmpl, input)
			if err != nil {
				return nil, err
			}
			req.Messages[i] = llm.Message{Role: roles[i], Content: content}
		}
		return req, nil
	}), nil
}
