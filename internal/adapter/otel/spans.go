package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "circuitforge"

// StartRenderSpan starts a span covering one render request.
func StartRenderSpan(ctx context.Context, renderID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "render",
		trace.WithAttributes(attribute.String("render.id", renderID)),
	)
}

// StartStageSpan starts a span for one external tool stage of a render.
func StartStageSpan(ctx context.Context, stage, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "render."+stage,
		trace.WithAttributes(
			attribute.String("render.stage", stage),
			attribute.String("render.tool", tool),
		),
	)
}

// StartPartSearchSpan starts a span for an outbound part lookup.
func StartPartSearchSpan(ctx context.Context, query string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "parts.search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("parts.query", query)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
