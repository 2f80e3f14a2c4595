package resilience

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/op"
)

// Breaker is an operation guarded by a circuit breaker.
type Breaker struct {
	inner op.Operation
	cb    *gobreaker.CircuitBreaker
}

// CircuitBreaker guards o with a breaker that opens after cfg.MaxFailures
// consecutive failures. While open, invocations fail with a
// SERVICE_UNAVAILABLE AppError without reaching o. Cancellations,
// parse and validation failures do not count against the dependency.
func CircuitBreaker(o op.Operation, cfg CircuitBreakerConfig) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        o.Name(),
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
	}
	return &Breaker{inner: o, cb: gobreaker.NewCircuitBreaker(settings)}
}

func countsAsFailure(err error) bool {
	var (
		cancelled  *op.CancelledFailure
		parse      *op.ParseError
		validation *op.ValidationError
	)
	switch {
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &parse), errors.As(err, &validation):
		return false
	}
	return true
}

func (b *Breaker) Name() string { return b.inner.Name() }

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Invoke(ctx context.Context, input any) (any, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Invoke(ctx, input)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.ServiceUnavailable(b.inner.Name()).WithCause(err)
	}
	return out, err
}
