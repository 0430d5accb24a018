package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "provgraph"

// StartIngestSpan starts a span covering one event's validate-normalize-apply
// pipeline.
func StartIngestSpan(ctx context.Context, eventID, kind, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ingest",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("event.kind", kind),
			attribute.String("task.id", taskID),
		),
	)
}

// StartApplySpan starts a span for one store apply.
func StartApplySpan(ctx context.Context, eventID string, nodes, edges int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "apply",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.Int("changeset.nodes", nodes),
			attribute.Int("changeset.edges", edges),
		),
	)
}
