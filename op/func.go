package op

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
)

// Func wraps fn as an Operation. Errors returned by fn and panics raised
// inside it are reported as *OperationFailure naming this operation.
func Func(name string, fn func(ctx context.Context, input any) (any, error)) Operation {
	if fn == nil {
		panic("op: Func requires a non-nil function")
	}
	if name == "" {
		name = "func"
	}
	return &funcOp{name: name, fn: fn}
}

type funcOp struct {
	name string
	fn   func(ctx context.Context, input any) (any, error)
}

func (f *funcOp) Name() string { return f.name }

func (f *funcOp) Invoke(ctx context.Context, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &OperationFailure{Op: f.name, Stage: -1, Cause: newPanicError(r)}
		}
	}()

	out, err = f.fn(ctx, input)
	if err != nil {
		if of, ok := err.(*OperationFailure); ok && of.Op == f.name {
			return nil, of
		}
		return nil, Fail(f.name, err)
	}
	return out, nil
}

// Typed wraps a typed function as an Operation. The input is converted with
// As; a value of the wrong type fails with a *TypeMismatch cause.
func Typed[I, O any](name string, fn func(ctx context.Context, input I) (O, error)) Operation {
	if fn == nil {
		panic("op: Typed requires a non-nil function")
	}
	return Func(name, func(ctx context.Context, input any) (any, error) {
		in, ok := As[I](input)
		if !ok {
			return nil, &TypeMismatch{Want: typeName[I](), Got: typeOf(input)}
		}
		return fn(ctx, in)
	})
}

// Passthrough returns the identity operation.
func Passthrough() Operation { return passthrough{} }

type passthrough struct{}

func (passthrough) Name() string { return "passthrough" }

func (passthrough) Invoke(_ context.Context, input any) (any, error) { return input, nil }

// PanicError is the cause recorded when a wrapped function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// TypeMismatch is the cause recorded when a stage receives an input it
// cannot accept.
type TypeMismatch struct {
	Want string
	Got  string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("expected input of type %s, got %s", e.Want, e.Got)
}

func typeName[T any]() string { return reflect.TypeFor[T]().String() }

func typeOf(v any) string { return fmt.Sprintf("%T", v) }
