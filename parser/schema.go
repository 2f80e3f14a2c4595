package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/kbukum/opkit/op"
)

// Type is the primitive type a Field accepts.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeAny     Type = "any"
)

// Field declares one named member of a Shape.
type Field struct {
	Name     string `yaml:"name" json:"name"`
	Type     Type   `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`
	// Shape describes the members of an object field.
	Shape *Shape `yaml:"shape,omitempty" json:"shape,omitempty"`
	// Items describes the elements of an array field; its Name is ignored.
	Items *Field `yaml:"items,omitempty" json:"items,omitempty"`
}

// Shape is a declared structural contract for an object.
type Shape struct {
	Fields []Field `yaml:"fields" json:"fields"`
	// Strict rejects members that are not declared.
	Strict bool `yaml:"strict,omitempty" json:"strict,omitempty"`
}

// Required declares a required field.
func Required(name string, t Type) Field { return Field{Name: name, Type: t, Required: true} }

// Optional declares an optional field.
func Optional(name string, t Type) Field { return Field{Name: name, Type: t} }

// Object declares an object field with a nested shape.
func Object(name string, required bool, shape Shape) Field {
	return Field{Name: name, Type: TypeObject, Required: required, Shape: &shape}
}

// ArrayOf declares an array field whose elements match items.
func ArrayOf(name string, required bool, items Field) Field {
	return Field{Name: name, Type: TypeArray, Required: required, Items: &items}
}

var knownTypes = []Type{TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray, TypeAny}

// Check reports a malformed shape declaration.
func (s Shape) Check() error {
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("shape: field name must not be empty")
		}
		if seen[f.Name] {
			return fmt.Errorf("shape: duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if err := f.check(f.Name); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) check(path string) error {
	if f.Type == "" {
		return fmt.Errorf("shape: field %q has no type", path)
	}
	if !slices.Contains(knownTypes, f.Type) {
		return fmt.Errorf("shape: field %q has unknown type %q", path, f.Type)
	}
	if f.Shape != nil {
		if f.Type != TypeObject {
			return fmt.Errorf("shape: field %q declares a nested shape but is %s", path, f.Type)
		}
		if err := f.Shape.Check(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if f.Items != nil {
		if f.Type != TypeArray {
			return fmt.Errorf("shape: field %q declares items but is %s", path, f.Type)
		}
		return f.Items.check(path + "[]")
	}
	return nil
}

// Validate returns every violation of s by v, in declaration order.
func (s Shape) Validate(v any) []op.Violation {
	var out []op.Violation
	s.validate("", v, &out)
	return out
}

func (s Shape) validate(prefix string, v any, out *[]op.Violation) {
	m, ok := asObject(v)
	if !ok {
		*out = append(*out, op.Violation{Path: prefix, Rule: "type", Message: fmt.Sprintf("expected object, got %s", kindOf(v))})
		return
	}

	for _, f := range s.Fields {
		path := join(prefix, f.Name)
		val, present := m[f.Name]
		switch {
		case !present && f.Required:
			*out = append(*out, op.Violation{Path: path, Rule: "required", Message: "is required"})
		case present && val == nil && f.Required:
			*out = append(*out, op.Violation{Path: path, Rule: "required", Message: "must not be null"})
		case present && val != nil:
			f.validate(path, val, out)
		}
	}

	if s.Strict {
		declared := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			declared[f.Name] = true
		}
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !declared[k] {
				*out = append(*out, op.Violation{Path: join(prefix, k), Rule: "unknown", Message: "is not declared"})
			}
		}
	}
}

func (f Field) validate(path string, v any, out *[]op.Violation) {
	if !matches(f.Type, v) {
		*out = append(*out, op.Violation{Path: path, Rule: "type", Message: fmt.Sprintf("expected %s, got %s", f.Type, kindOf(v))})
		return
	}
	switch f.Type {
	case TypeObject:
		if f.Shape != nil {
			f.Shape.validate(path, v, out)
		}
	case TypeArray:
		if f.Items == nil {
			return
		}
		for i, item := range v.([]any) {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				if f.Items.Required {
					*out = append(*out, op.Violation{Path: itemPath, Rule: "required", Message: "must not be null"})
				}
				continue
			}
			f.Items.validate(itemPath, item, out)
		}
	}
}

func matches(t Type, v any) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		_, ok := number(v)
		return ok
	case TypeInteger:
		n, ok := number(v)
		return ok && n == math.Trunc(n)
	case TypeObject:
		_, ok := asObject(v)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case op.Envelope:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	}
	if _, ok := number(v); ok {
		return "number"
	}
	if _, ok := asObject(v); ok {
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// SchemaParser decodes raw output and validates it against a Shape.
type SchemaParser struct {
	opts  options
	shape Shape
}

// NewSchema returns a parser that decodes text (JSON by default, see
// WithDecoder) and checks the result against shape. With WithPath the
// decoded document is narrowed first. Every violation is reported in one
// *op.ValidationError. Successful output is an op.Envelope. A malformed
// shape is an error.
func NewSchema(shape Shape, opts ...Option) (*SchemaParser, error) {
	if err := shape.Check(); err != nil {
		return nil, err
	}
	o := buildOptions("schema", opts)
	if o.decoder == nil {
		o.decoder = JSON(WithName(o.name))
	}
	return &SchemaParser{opts: o, shape: shape}, nil
}

// Schema is like NewSchema but panics on a malformed shape.
func Schema(shape Shape, opts ...Option) *SchemaParser {
	p, err := NewSchema(shape, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *SchemaParser) Name() string { return p.opts.name }

// Shape returns the declared shape.
func (p *SchemaParser) Shape() Shape { return p.shape }

func (p *SchemaParser) Invoke(ctx context.Context, input any) (any, error) {
	return invoke(ctx, p, input)
}

func (p *SchemaParser) Parse(raw any) (any, error) {
	decoded, err := p.opts.decode(raw)
	if err != nil {
		return nil, err
	}
	if violations := p.shape.Validate(decoded); len(violations) > 0 {
		return nil, &op.ValidationError{Op: p.opts.name, Raw: raw, Violations: violations}
	}
	return decoded, nil
}
