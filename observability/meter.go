package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeter installs a global meter provider exporting over OTLP/HTTP.
func InitMeter(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(newResource(cfg)),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded around operation invocations.
type Metrics struct {
	operationTotal    metric.Int64Counter
	operationDuration metric.Float64Histogram
	operationActive   metric.Int64UpDownCounter
	errorTotal        metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operationTotal, err := meter.Int64Counter("opkit.operation.total",
		metric.WithDescription("Total number of operation invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating opkit.operation.total counter: %w", err)
	}

	operationDuration, err := meter.Float64Histogram("opkit.operation.duration",
		metric.WithDescription("Duration of operation invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating opkit.operation.duration histogram: %w", err)
	}

	operationActive, err := meter.Int64UpDownCounter("opkit.operation.active",
		metric.WithDescription("Number of in-flight operation invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating opkit.operation.active counter: %w", err)
	}

	errorTotal, err := meter.Int64Counter("opkit.error.total",
		metric.WithDescription("Total failures by error code and operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating opkit.error.total counter: %w", err)
	}

	return &Metrics{
		operationTotal:    operationTotal,
		operationDuration: operationDuration,
		operationActive:   operationActive,
		errorTotal:        errorTotal,
	}, nil
}

// RecordStart increments the in-flight gauge for operation.
func (m *Metrics) RecordStart(ctx context.Context, operation string) {
	m.operationActive.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordOperation records a completed invocation and decrements the in-flight gauge.
func (m *Metrics) RecordOperation(ctx context.Context, operation, status string, duration time.Duration) {
	opAttr := attribute.String("operation", operation)
	m.operationActive.Add(ctx, -1, metric.WithAttributes(opAttr))
	m.operationTotal.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("status", status)))
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(opAttr))
}

// RecordError records a failure by error code and operation.
func (m *Metrics) RecordError(ctx context.Context, code, operation string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code),
		attribute.String("operation", operation),
	))
}
