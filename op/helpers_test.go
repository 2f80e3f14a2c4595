package op

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

// counter counts invocations and applies fn.
type counter struct {
	name  string
	calls atomic.Int32
	fn    func(any) (any, error)
}

func newCounter(name string, fn func(any) (any, error)) *counter {
	return &counter{name: name, fn: fn}
}

func (c *counter) Name() string { return c.name }

func (c *counter) Invoke(_ context.Context, input any) (any, error) {
	c.calls.Add(1)
	return c.fn(input)
}

func appendOp(suffix string) Operation {
	return Func("append-"+suffix, func(_ context.Context, in any) (any, error) {
		return in.(string) + suffix, nil
	})
}

func upperOp() Operation {
	return Typed("upper", func(_ context.Context, in string) (string, error) {
		return strings.ToUpper(in), nil
	})
}

var errBoom = errors.New("boom")

func failOp(name string) Operation {
	return Func(name, func(context.Context, any) (any, error) { return nil, errBoom })
}
