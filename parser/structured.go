package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/opkit/op"
)

// JSONParser decodes JSON text into generic data.
type JSONParser struct {
	opts options
}

// JSON returns a parser that decodes JSON text. Markdown code fences and
// prose around a single object or array are stripped first. Objects decode
// to op.Envelope, arrays to []any. Already-structured input passes through.
func JSON(opts ...Option) *JSONParser {
	return &JSONParser{opts: buildOptions("json", opts)}
}

func (p *JSONParser) Name() string { return p.opts.name }

func (p *JSONParser) Invoke(ctx context.Context, input any) (any, error) {
	return invoke(ctx, p, input)
}

func (p *JSONParser) Parse(raw any) (any, error) {
	v, isData := structured(raw)
	if isData && p.opts.path == "" {
		return v, nil
	}

	var text string
	if isData {
		doc, err := jsonDocument(raw)
		if err != nil {
			return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: err}
		}
		text = doc
	} else {
		s, ok := textOf(raw)
		if !ok {
			return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: fmt.Errorf("no text content in %T", raw)}
		}
		text = s
	}

	body, offset := extractJSON(text)
	if p.opts.path != "" {
		if !gjson.Valid(body) {
			return nil, p.syntaxFailure(raw, body, offset)
		}
		res := gjson.Get(body, p.opts.path)
		if !res.Exists() {
			return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: fmt.Errorf("path %q not found", p.opts.path)}
		}
		body, offset = res.Raw, -1
	}

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: jsonPosition(err, body, offset), Cause: err}
	}
	return normalize(decoded), nil
}

func (p *JSONParser) syntaxFailure(raw any, body string, offset int) error {
	var v any
	err := json.Unmarshal([]byte(body), &v)
	if err == nil {
		err = errors.New("invalid JSON")
	}
	return &op.ParseError{Op: p.opts.name, Raw: raw, Position: jsonPosition(err, body, offset), Cause: err}
}

// jsonPosition maps a decode error to a byte offset in the original text.
func jsonPosition(err error, body string, offset int) int {
	if offset < 0 {
		return -1
	}
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return offset + int(syntax.Offset)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "unexpected end of JSON input") {
		return offset + len(body)
	}
	return -1
}

// extractJSON strips Markdown fences and surrounding prose. It returns the
// candidate document and its byte offset in s.
func extractJSON(s string) (string, int) {
	body, offset := stripFences(s)

	trimmed := strings.TrimLeft(body, " \t\r\n")
	offset += len(body) - len(trimmed)
	body = strings.TrimRight(trimmed, " \t\r\n")

	if looksLikeJSON(body) {
		return body, offset
	}

	start := strings.IndexAny(body, "{[")
	if start < 0 {
		return body, offset
	}
	closer := "}"
	if body[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(body, closer)
	if end <= start {
		return body[start:], offset + start
	}
	return body[start : end+1], offset + start
}

func looksLikeJSON(s string) bool {
	if s == "" || strings.ContainsRune(`{["-0123456789`, rune(s[0])) {
		return true
	}
	for _, lit := range []string{"true", "false", "null"} {
		if s == lit {
			return true
		}
	}
	return false
}

// stripFences removes a surrounding ``` block, returning the inner text and
// its offset in s.
func stripFences(s string) (string, int) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s, 0
	}
	lead := strings.Index(s, "```")
	rest := s[lead+3:]
	nl := strings.Index(rest, "\n")
	if nl < 0 {
		return s, 0
	}
	start := lead + 3 + nl + 1
	inner := s[start:]
	if end := strings.LastIndex(inner, "```"); end >= 0 {
		inner = inner[:end]
	}
	return inner, start
}

// YAMLParser decodes YAML text into generic data.
type YAMLParser struct {
	opts options
}

// YAML returns a parser that decodes YAML text. Mappings decode to
// op.Envelope. Syntax errors report the offset of the offending line.
func YAML(opts ...Option) *YAMLParser {
	return &YAMLParser{opts: buildOptions("yaml", opts)}
}

func (p *YAMLParser) Name() string { return p.opts.name }

func (p *YAMLParser) Invoke(ctx context.Context, input any) (any, error) {
	return invoke(ctx, p, input)
}

func (p *YAMLParser) Parse(raw any) (any, error) {
	if v, ok := structured(raw); ok {
		return v, nil
	}

	text, ok := textOf(raw)
	if !ok {
		return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: -1, Cause: fmt.Errorf("no text content in %T", raw)}
	}

	body, offset := stripFences(text)
	var v any
	if err := yaml.Unmarshal([]byte(body), &v); err != nil {
		return nil, &op.ParseError{Op: p.opts.name, Raw: raw, Position: yamlPosition(err, body, offset), Cause: err}
	}
	return normalize(v), nil
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// yamlPosition converts the "line N" reported by the decoder into the byte
// offset of that line.
func yamlPosition(err error, body string, offset int) int {
	m := yamlLine.FindStringSubmatch(err.Error())
	if m == nil {
		return -1
	}
	line, convErr := strconv.Atoi(m[1])
	if convErr != nil || line < 1 {
		return -1
	}
	pos := 0
	for i := 1; i < line; i++ {
		nl := strings.IndexByte(body[pos:], '\n')
		if nl < 0 {
			return -1
		}
		pos += nl + 1
	}
	return offset + pos
}

// structured reports whether raw is already decoded data.
func structured(raw any) (any, bool) {
	switch v := raw.(type) {
	case op.Envelope:
		return v.Clone(), true
	case map[string]any:
		return op.Envelope(v).Clone(), true
	case []any:
		return append([]any(nil), v...), true
	}
	return nil, false
}

// normalize converts a decoded top-level object into an Envelope.
func normalize(v any) any {
	if m, ok := v.(map[string]any); ok {
		return op.Envelope(m)
	}
	return v
}
