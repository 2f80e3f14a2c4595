// Package observability provides OpenTelemetry tracing and metrics for
// pipeline invocations.
//
// Tracing:
//
//	shutdown, err := observability.InitTracer(ctx, observability.DefaultConfig("opkit"))
//	defer shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "pipeline.summarize")
//	defer span.End()
//
// Metrics:
//
//	metrics, err := observability.NewMetrics(observability.Meter("opkit"))
//	metrics.RecordOperation(ctx, "summarize", "ok", duration)
package observability
