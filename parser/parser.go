package parser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/kbukum/opkit/op"
)

// Parser is an Operation that interprets a raw value into a target shape.
type Parser interface {
	op.Operation
	// Parse interprets raw without modifying it.
	Parse(raw any) (any, error)
}

// Option configures a parser.
type Option func(*options)

type options struct {
	name    string
	path    string
	decoder Parser
}

// WithName overrides the operation name reported in failures.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithPath selects a sub-value with a gjson path (e.g. "choices.0.message.content")
// before the parser does its work.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithDecoder sets the structured parser a validating parser decodes text
// with. The default is JSON.
func WithDecoder(p Parser) Option {
	return func(o *options) { o.decoder = p }
}

func buildOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// decode runs the decoder of a validating parser and narrows the result to
// the configured path. A selected string is decoded again, so a path may
// point at JSON text embedded in a response envelope.
func (o options) decode(raw any) (any, error) {
	decoded, err := o.decoder.Parse(raw)
	if err != nil || o.path == "" {
		return decoded, err
	}

	doc, err := json.Marshal(plain(decoded))
	if err != nil {
		return nil, &op.ParseError{Op: o.name, Raw: raw, Position: -1, Cause: err}
	}
	res := gjson.GetBytes(doc, o.path)
	if !res.Exists() {
		return nil, &op.ParseError{Op: o.name, Raw: raw, Position: -1, Cause: fmt.Errorf("path %q not found", o.path)}
	}
	if res.Type == gjson.String {
		return o.decoder.Parse(res.String())
	}

	var selected any
	if err := json.Unmarshal([]byte(res.Raw), &selected); err != nil {
		return nil, &op.ParseError{Op: o.name, Raw: raw, Position: -1, Cause: err}
	}
	return normalize(selected), nil
}

// invoke adapts Parse to the Operation contract.
func invoke(ctx context.Context, p Parser, raw any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Parse(raw)
}

// textual is satisfied by model responses and similar wrappers.
type textual interface {
	Text() string
}

// textOf extracts textual content from raw.
func textOf(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case textual:
		return v.Text(), true
	case fmt.Stringer:
		return v.String(), true
	case op.Envelope:
		return textField(v)
	case map[string]any:
		return textField(v)
	}
	return "", false
}

func textField(m map[string]any) (string, bool) {
	for _, key := range []string{"text", "content"} {
		if s, ok := m[key].(string); ok {
			return s, true
		}
	}
	return "", false
}
