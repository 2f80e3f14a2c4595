package resilience

import (
	"context"

	"golang.org/x/time/rate"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/op"
)

// RateLimit admits invocations of o through a token bucket. Callers wait
// for a token; when the wait cannot finish before the context deadline the
// invocation fails with a RATE_LIMITED AppError. A zero rate returns o
// unchanged.
func RateLimit(o op.Operation, cfg RateLimitConfig) op.Operation {
	if cfg.RPS <= 0 {
		return o
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitOp{inner: o, limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst)}
}

type rateLimitOp struct {
	inner   op.Operation
	limiter *rate.Limiter
}

func (r *rateLimitOp) Name() string { return r.inner.Name() }

func (r *rateLimitOp) Invoke(ctx context.Context, input any) (any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.RateLimited().WithCause(err)
	}
	return r.inner.Invoke(ctx, input)
}
