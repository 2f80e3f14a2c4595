package parser

import (
	"context"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/kbukum/opkit/op"
	"github.com/kbukum/opkit/validation"
)

// Bind decodes validated data into T using json struct tags. Durations and
// RFC 3339 timestamps are converted from strings. When T carries validate
// tags, every failed rule becomes a violation of the returned
// *op.ValidationError.
func Bind[T any](v any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(plain(v)); err != nil {
		return out, &op.ValidationError{
			Op:         "bind",
			Raw:        v,
			Violations: []op.Violation{{Rule: "bind", Message: err.Error()}},
		}
	}
	if fields := validation.Fields(&out); len(fields) > 0 {
		violations := make([]op.Violation, len(fields))
		for i, f := range fields {
			violations[i] = op.Violation{Path: f.Field, Rule: f.Rule, Message: f.Message}
		}
		return out, &op.ValidationError{Op: "bind", Raw: v, Violations: violations}
	}
	return out, nil
}

// Binder returns an Operation that binds its input into T.
func Binder[T any](name string) op.Operation {
	if name == "" {
		name = "bind " + reflect.TypeFor[T]().String()
	}
	return op.Func(name, func(_ context.Context, input any) (any, error) {
		return Bind[T](input)
	})
}
