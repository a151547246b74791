package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "asktennis"

// StartPipelineSpan starts the root span for one question.
func StartPipelineSpan(ctx context.Context, question string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline",
		trace.WithAttributes(
			attribute.Int("question.length", len(question)),
		),
	)
}

// StartStageSpan starts a span for a single pipeline stage.
func StartStageSpan(ctx context.Context, stage string, degraded bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage."+stage,
		trace.WithAttributes(
			attribute.String("stage", stage),
			attribute.Bool("degraded", degraded),
		),
	)
}

// StartQuerySpan starts a span for a relational store query.
func StartQuerySpan(ctx context.Context, source, shape string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "store.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("query.source", source),
			attribute.String("query.shape", shape),
		),
	)
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
