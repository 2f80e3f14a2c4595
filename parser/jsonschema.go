package parser

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/kbukum/opkit/op"
)

// JSONSchemaParser decodes raw output and validates it against a compiled
// JSON Schema document.
type JSONSchemaParser struct {
	opts   options
	schema *jsonschema.Schema
}

// JSONSchema compiles document and returns a validating parser named name.
func JSONSchema(name string, document []byte, opts ...Option) (*JSONSchemaParser, error) {
	compiled, err := jsonschema.NewCompiler().Compile(document)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", name, err)
	}
	o := buildOptions(name, opts)
	if o.decoder == nil {
		o.decoder = JSON(WithName(o.name))
	}
	return &JSONSchemaParser{opts: o, schema: compiled}, nil
}

// JSONSchemaFromMap is JSONSchema for a schema held as decoded data, as it
// appears inside pipeline definitions.
func JSONSchemaFromMap(name string, document map[string]any, opts ...Option) (*JSONSchemaParser, error) {
	b, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema %q: %w", name, err)
	}
	return JSONSchema(name, b, opts...)
}

func (p *JSONSchemaParser) Name() string { return p.opts.name }

func (p *JSONSchemaParser) Invoke(ctx context.Context, input any) (any, error) {
	return invoke(ctx, p, input)
}

func (p *JSONSchemaParser) Parse(raw any) (any, error) {
	decoded, err := p.opts.decode(raw)
	if err != nil {
		return nil, err
	}

	result := p.schema.Validate(plain(decoded))
	if result.Valid {
		return decoded, nil
	}

	violations := collectViolations(nil, "", plain(decoded), result)
	slices.SortStableFunc(violations, func(a, b op.Violation) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Rule, b.Rule))
	})
	return nil, &op.ValidationError{Op: p.opts.name, Raw: raw, Violations: violations}
}

// applicators only summarize failures of nested evaluations; they are
// reported only when no nested result explains them.
var applicators = map[string]bool{
	"properties": true, "patternProperties": true, "additionalProperties": true,
	"items": true, "prefixItems": true, "contains": true,
	"allOf": true, "anyOf": true, "oneOf": true, "$ref": true, "$dynamicRef": true,
}

// collectViolations walks the evaluation tree and returns one violation
// per leaf error, located by the dotted path of the offending value.
func collectViolations(out []op.Violation, path string, value any, result *jsonschema.EvaluationResult) []op.Violation {
	nested := false
	for _, d := range result.Details {
		if d == nil || d.Valid {
			continue
		}
		nested = true
		seg := strings.TrimPrefix(d.InstanceLocation, "/")
		if seg == "" {
			out = collectViolations(out, path, value, d)
			continue
		}
		childPath, child := descend(path, value, seg)
		out = collectViolations(out, childPath, child, d)
	}
	for _, keyword := range slices.Sorted(maps.Keys(result.Errors)) {
		if nested && applicators[keyword] {
			continue
		}
		out = append(out, op.Violation{
			Path:    path,
			Rule:    keyword,
			Message: result.Errors[keyword].Error(),
		})
	}
	return out
}

// descend appends seg to path, as an index when value is an array.
func descend(path string, value any, seg string) (string, any) {
	switch t := value.(type) {
	case []any:
		if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < len(t) {
			return path + "[" + seg + "]", t[i]
		}
	case map[string]any:
		if path == "" {
			return seg, t[seg]
		}
		return path + "." + seg, t[seg]
	}
	if path == "" {
		return seg, nil
	}
	return path + "." + seg, nil
}

// plain converts Envelopes back to map[string]any recursively so the
// validator sees standard JSON types.
func plain(v any) any {
	switch t := v.(type) {
	case op.Envelope:
		return plain(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	}
	return v
}
