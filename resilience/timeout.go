package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/kbukum/opkit/op"
)

// Timeout bounds each invocation of o to d. When the limit is hit the
// failure is an *op.TimeoutFailure. A non-positive d returns o unchanged.
// The wrapped operation is always awaited; it must observe its context to
// stop early.
func Timeout(o op.Operation, d time.Duration) op.Operation {
	if d <= 0 {
		return o
	}
	return &timeoutOp{inner: o, after: d}
}

type timeoutOp struct {
	inner op.Operation
	after time.Duration
}

func (t *timeoutOp) Name() string { return t.inner.Name() }

func (t *timeoutOp) Invoke(ctx context.Context, input any) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, t.after)
	defer cancel()

	out, err := t.inner.Invoke(tctx, input)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return nil, &op.TimeoutFailure{Op: t.inner.Name(), After: t.after, Cause: err}
	}
	return out, err
}
