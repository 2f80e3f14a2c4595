package parser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/kbukum/opkit/op"
)

// TextParser extracts plain text content.
type TextParser struct {
	opts options
}

// Text returns a parser that extracts textual content from strings, byte
// slices, values with a Text() or String() method, or envelopes carrying a
// "text" or "content" string. With WithPath the content is read as JSON
// (maps are encoded first) and the path result is returned as text.
func Text(opts ...Option) *TextParser {
	return &TextParser{opts: buildOptions("text", opts)}
}

func (p *TextParser) Name() string { return p.opts.name }

func (p *TextParser) Invoke(ctx context.Context, input any) (any, error) {
	return invoke(ctx, p, input)
}

func (p *TextParser) Parse(raw any) (any, error) {
	if p.opts.path != "" {
		return p.parsePath(raw)
	}
	if raw == nil {
		return "", nil
	}
	s, ok := textOf(raw)
	if !ok {
		return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: fmt.Errorf("no text content in %T", raw)}
	}
	return s, nil
}

func (p *TextParser) parsePath(raw any) (any, error) {
	doc, err := jsonDocument(raw)
	if err != nil {
		return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: err}
	}
	if !gjson.Valid(doc) {
		return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: fmt.Errorf("content is not valid JSON")}
	}
	result := gjson.Get(doc, p.opts.path)
	if !result.Exists() {
		return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: fmt.Errorf("path %q not found", p.opts.path)}
	}
	return result.String(), nil
}

// jsonDocument returns raw as a JSON text, encoding maps and slices.
func jsonDocument(raw any) (string, error) {
	switch raw.(type) {
	case op.Envelope, map[string]any, []any:
		b, err := json.Marshal(raw)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	s, ok := textOf(raw)
	if !ok {
		return "", fmt.Errorf("no text content in %T", raw)
	}
	return s, nil
}
