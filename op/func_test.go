package op

import (
	"context"
	"errors"
	"testing"
)

func TestFunc_Success(t *testing.T) {
	out, err := appendOp("!").Invoke(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi!" {
		t.Errorf("got %v", out)
	}
}

func TestFunc_ErrorWrapped(t *testing.T) {
	_, err := failOp("explode").Invoke(context.Background(), nil)

	var of *OperationFailure
	if !errors.As(err, &of) {
		t.Fatalf("expected *OperationFailure, got %T", err)
	}
	if of.Op != "explode" || of.Stage != -1 {
		t.Errorf("unexpected failure %+v", of)
	}
	if !errors.Is(err, errBoom) {
		t.Error("original cause lost")
	}
}

func TestFunc_NoDoubleWrap(t *testing.T) {
	f := Func("self", func(context.Context, any) (any, error) {
		return nil, Fail("self", errBoom)
	})
	_, err := f.Invoke(context.Background(), nil)
	of := err.(*OperationFailure)
	if _, nested := of.Cause.(*OperationFailure); nested {
		t.Error("failure naming the same op was wrapped twice")
	}
}

func TestFunc_PanicRecovered(t *testing.T) {
	f := Func("panicky", func(context.Context, any) (any, error) {
		panic("kaboom")
	})
	out, err := f.Invoke(context.Background(), nil)
	if out != nil {
		t.Errorf("expected nil output, got %v", out)
	}

	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError cause, got %v", err)
	}
	if pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Errorf("unexpected panic error %+v", pe)
	}
}

func TestFunc_PanicWithError(t *testing.T) {
	f := Func("panicky", func(context.Context, any) (any, error) {
		panic(errBoom)
	})
	_, err := f.Invoke(context.Background(), nil)
	if !errors.Is(err, errBoom) {
		t.Errorf("expected panic error to unwrap to errBoom, got %v", err)
	}
}

func TestFunc_DefaultName(t *testing.T) {
	f := Func("", func(context.Context, any) (any, error) { return nil, nil })
	if f.Name() != "func" {
		t.Errorf("Name() = %q", f.Name())
	}
}

func TestTyped(t *testing.T) {
	out, err := upperOp().Invoke(context.Background(), "abc")
	if err != nil || out != "ABC" {
		t.Fatalf("got %v, %v", out, err)
	}

	_, err = upperOp().Invoke(context.Background(), 42)
	var tm *TypeMismatch
	if !errors.As(err, &tm) {
		t.Fatalf("expected *TypeMismatch, got %v", err)
	}
	if tm.Want != "string" || tm.Got != "int" {
		t.Errorf("unexpected mismatch %+v", tm)
	}
}

func TestTyped_EnvelopeFromMap(t *testing.T) {
	keys := Typed("keys", func(_ context.Context, env Envelope) ([]string, error) {
		return env.Keys(), nil
	})
	out, err := keys.Invoke(context.Background(), map[string]any{"b": 1, "a": 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := out.([]string); len(got) != 2 || got[0] != "a" {
		t.Errorf("got %v", got)
	}
}

func TestPassthrough(t *testing.T) {
	env := Envelope{"k": 1}
	out, err := Passthrough().Invoke(context.Background(), env)
	if err != nil {
		t.Fatal(err)
	}
	if out.(Envelope)["k"] != 1 {
		t.Errorf("got %v", out)
	}
	if Passthrough().Name() != "passthrough" {
		t.Errorf("Name() = %q", Passthrough().Name())
	}
}
