package op

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"slices"
)

// Operation is a unit of work with a single-input/single-output contract.
// Implementations are immutable after construction and safe for concurrent use.
type Operation interface {
	// Name identifies the operation in failures, logs and spans.
	Name() string
	// Invoke runs the operation on input.
	Invoke(ctx context.Context, input any) (any, error)
}

var (
	// ErrNilOperation is returned when a nil Operation is composed or invoked.
	ErrNilOperation = errors.New("op: nil operation")
	// ErrEmptySequence is returned when a sequence is built without stages.
	ErrEmptySequence = errors.New("op: sequence requires at least one stage")
	// ErrEmptyParallel is returned when a parallel composite is built without branches.
	ErrEmptyParallel = errors.New("op: parallel requires at least one branch")
	// ErrEmptyBranchName is returned when a parallel branch has an empty name.
	ErrEmptyBranchName = errors.New("op: parallel branch name must not be empty")
)

// Envelope is the key-valued payload exchanged between stages.
// Composites never mutate an Envelope they receive; they copy it.
type Envelope map[string]any

// Get returns the value stored under key.
func (e Envelope) Get(key string) (any, bool) {
	v, ok := e[key]
	return v, ok
}

// String returns the value under key if it is a string.
func (e Envelope) String(key string) (string, bool) {
	s, ok := e[key].(string)
	return s, ok
}

// Keys returns the envelope keys in sorted order.
func (e Envelope) Keys() []string {
	return slices.Sorted(maps.Keys(e))
}

// Clone returns a shallow copy. Cloning a nil Envelope yields an empty one.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e))
	maps.Copy(out, e)
	return out
}

// With returns a copy of e with key set to value.
func (e Envelope) With(key string, value any) Envelope {
	out := e.Clone()
	out[key] = value
	return out
}

// Merge returns a copy of e overlaid with other. Keys in other win.
func (e Envelope) Merge(other map[string]any) Envelope {
	out := e.Clone()
	maps.Copy(out, other)
	return out
}

// As converts v to T. Envelope and map[string]any convert into each other,
// and nil converts to the zero value of nilable types.
func As[T any](v any) (T, bool) {
	if t, ok := v.(T); ok {
		return t, true
	}

	var zero T
	switch any(zero).(type) {
	case Envelope:
		if m, ok := v.(map[string]any); ok {
			return any(Envelope(m)).(T), true
		}
	case map[string]any:
		if e, ok := v.(Envelope); ok {
			return any(map[string]any(e)).(T), true
		}
	}

	if v == nil {
		switch reflect.TypeFor[T]().Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return zero, true
		}
	}
	return zero, false
}

// cloneInput returns a shallow copy of map-shaped inputs so that concurrent
// branches never observe each other's writes.
func cloneInput(input any) any {
	switch v := input.(type) {
	case Envelope:
		return v.Clone()
	case map[string]any:
		return maps.Clone(v)
	default:
		return input
	}
}
