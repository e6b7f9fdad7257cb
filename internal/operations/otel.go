package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"etaanalyzer/internal/dataprocessing"
	"etaanalyzer/internal/infrastructure"
)

const (
	TracerName = "etaanalyzer.operation"
)

// OperationTracer provides OpenTelemetry instrumentation for runs and steps.
// A nil metrics set only disables the metric side.
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewOperationTracer creates a tracer on the global provider
func NewOperationTracer(metrics *infrastructure.PipelineMetrics) *OperationTracer {
	return &OperationTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// TraceRun creates a span for the entire run
func (pt *OperationTracer) TraceRun(ctx context.Context, runID, source string) (context.Context, trace.Span) {
	ctx, span := pt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.source", source),
		),
	)
	pt.metrics.RecordActiveRunChange(ctx, 1)
	return ctx, span
}

// TraceStep creates a span for a single step
func (pt *OperationTracer) TraceStep(ctx context.Context, runID, stepID string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, fmt.Sprintf("pipeline.step.%s", stepID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordStepCompletion closes out a step span and records its metrics
func (pt *OperationTracer) RecordStepCompletion(ctx context.Context, span trace.Span, stepID string, duration time.Duration, stats *dataprocessing.StageStats, err error) {
	var written, dropped, warnings int64
	if stats != nil {
		written, dropped, warnings = int64(stats.RowsWritten), int64(stats.RowsDropped), int64(stats.Warnings)
		span.SetAttributes(
			attribute.Int("step.rows_read", stats.RowsRead),
			attribute.Int("step.rows_written", stats.RowsWritten),
			attribute.Int("step.rows_dropped", stats.RowsDropped),
			attribute.Int("step.warnings", stats.Warnings),
		)
	}
	span.SetAttributes(attribute.Float64("step.duration_seconds", duration.Seconds()))
	pt.metrics.RecordStage(ctx, stepID, duration, written, dropped, warnings, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "step completed")
}

// RecordRunCompletion closes out the run span and records run metrics
func (pt *OperationTracer) RecordRunCompletion(ctx context.Context, span trace.Span, duration time.Duration, status OperationStatusValue, err error) {
	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
	)
	pt.metrics.RecordRun(ctx, duration, err == nil)
	pt.metrics.RecordActiveRunChange(ctx, -1)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		return
	}
	span.SetStatus(codes.Ok, "run completed")
}
