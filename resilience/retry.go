package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kbukum/opkit/op"
)

// Retryable reports whether a failure is worth another attempt: timeouts,
// parse errors (a new model reply may be well-formed) and transient
// dependency errors. Cancellation and validation failures are final.
func Retryable(err error) bool {
	var cancelled *op.CancelledFailure
	if err == nil || errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	return op.ToAppError(err).Retryable
}

// Retry re-invokes o while it fails with a retryable error, up to
// cfg.MaxAttempts attempts in total. The last failure is returned.
func Retry(o op.Operation, cfg RetryConfig) op.Operation {
	if cfg.MaxAttempts < 2 {
		return o
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = Retryable
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	return &retryOp{inner: o, cfg: cfg}
}

type retryOp struct {
	inner op.Operation
	cfg   RetryConfig
}

func (r *retryOp) Name() string { return r.inner.Name() }

func (r *retryOp) backoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.InitialBackoff)
	if r.cfg.MaxBackoff > 0 {
		b = retry.WithCappedDuration(r.cfg.MaxBackoff, b)
	}
	if r.cfg.Jitter > 0 {
		b = retry.WithJitter(r.cfg.Jitter, b)
	}
	return retry.WithMaxRetries(uint64(r.cfg.MaxAttempts-1), b) // #nosec G115 -- MaxAttempts >= 2
}

func (r *retryOp) Invoke(ctx context.Context, input any) (any, error) {
	var out any
	var lastErr error
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		var callErr error
		out, callErr = r.inner.Invoke(ctx, input)
		if callErr != nil {
			lastErr = callErr
			if ctx.Err() == nil && r.cfg.RetryIf(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		if lastErr != nil && ctx.Err() != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return out, nil
}
