package resilience

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/op"
)

// ErrBulkheadFull is the cause recorded when no slot frees up within MaxWait.
var ErrBulkheadFull = errors.New("bulkhead is full")

// Bulkhead limits o to cfg.MaxConcurrent simultaneous invocations. A zero
// limit returns o unchanged.
func Bulkhead(o op.Operation, cfg BulkheadConfig) op.Operation {
	if cfg.MaxConcurrent <= 0 {
		return o
	}
	return &bulkheadOp{inner: o, sem: semaphore.NewWeighted(cfg.MaxConcurrent), cfg: cfg}
}

type bulkheadOp struct {
	inner op.Operation
	sem   *semaphore.Weighted
	cfg   BulkheadConfig
}

func (b *bulkheadOp) Name() string { return b.inner.Name() }

func (b *bulkheadOp) Invoke(ctx context.Context, input any) (any, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)
	return b.inner.Invoke(ctx, input)
}

func (b *bulkheadOp) acquire(ctx context.Context) error {
	if b.cfg.MaxWait <= 0 {
		return b.sem.Acquire(ctx, 1)
	}
	wctx, cancel := context.WithTimeout(ctx, b.cfg.MaxWait)
	defer cancel()
	if err := b.sem.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.ServiceUnavailable(b.inner.Name()).WithCause(ErrBulkheadFull)
	}
	return nil
}
