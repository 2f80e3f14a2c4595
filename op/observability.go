package op

import (
	"context"
	"time"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/logger"
	"github.com/kbukum/opkit/observability"
)

// WithLogging returns a Middleware that logs each invocation.
// Logs: operation name, invocation ID, duration, and success/error status.
func WithLogging(log *logger.Logger) Middleware {
	return func(inner Operation) Operation {
		return &loggingOp{inner: inner, log: log}
	}
}

type loggingOp struct {
	inner Operation
	log   *logger.Logger
}

func (l *loggingOp) Name() string { return l.inner.Name() }

func (l *loggingOp) Invoke(ctx context.Context, input any) (any, error) {
	start := time.Now()
	out, err := l.inner.Invoke(ctx, input)
	duration := time.Since(start)

	fields := logger.DurationFields(l.inner.Name(), duration)
	log := l.log.WithContext(ctx)
	if err != nil {
		fields[logger.FieldError] = err.Error()
		fields[logger.FieldStatus] = string(codeOf(err))
		log.Error("operation failed", fields)
	} else {
		log.Debug("operation completed", fields)
	}

	return out, err
}

// WithTracing returns a Middleware that wraps each invocation in a span
// named "{prefix}.{operation}".
func WithTracing(prefix string) Middleware {
	return func(inner Operation) Operation {
		return &tracingOp{inner: inner, prefix: prefix}
	}
}

type tracingOp struct {
	inner  Operation
	prefix string
}

func (t *tracingOp) Name() string { return t.inner.Name() }

func (t *tracingOp) Invoke(ctx context.Context, input any) (any, error) {
	spanName := t.inner.Name()
	if t.prefix != "" {
		spanName = t.prefix + "." + spanName
	}
	ctx, span := observability.StartSpan(ctx, spanName)
	defer span.End()

	observability.SetSpanAttribute(ctx, observability.AttrOperationName, t.inner.Name())
	if id := InvocationID(ctx); id != "" {
		observability.SetSpanAttribute(ctx, observability.AttrInvocationID, id)
	}

	out, err := t.inner.Invoke(ctx, input)
	if err != nil {
		observability.SetSpanAttribute(ctx, observability.AttrErrorCode, string(codeOf(err)))
		observability.SetSpanError(ctx, err)
	}
	return out, err
}

// WithMetrics returns a Middleware recording invocation count, duration,
// in-flight gauge and failures by code.
func WithMetrics(metrics *observability.Metrics) Middleware {
	return func(inner Operation) Operation {
		return &metricsOp{inner: inner, metrics: metrics}
	}
}

type metricsOp struct {
	inner   Operation
	metrics *observability.Metrics
}

func (m *metricsOp) Name() string { return m.inner.Name() }

func (m *metricsOp) Invoke(ctx context.Context, input any) (any, error) {
	m.metrics.RecordStart(ctx, m.inner.Name())
	start := time.Now()
	out, err := m.inner.Invoke(ctx, input)
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		m.metrics.RecordError(ctx, string(codeOf(err)), m.inner.Name())
	}
	m.metrics.RecordOperation(ctx, m.inner.Name(), status, duration)

	return out, err
}

func codeOf(err error) apperrors.ErrorCode {
	return ToAppError(err).Code
}
