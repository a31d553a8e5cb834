package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "triggergate"

// StartIngestSpan starts a span covering one inbound delivery.
func StartIngestSpan(ctx context.Context, source, deliveryID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ingest",
		trace.WithAttributes(
			attribute.String("message.source", source),
			attribute.String("message.delivery_id", deliveryID),
		),
	)
}

// StartDispatchSpan starts a span for publishing a command to the queue.
func StartDispatchSpan(ctx context.Context, targetKind, targetName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("target.kind", targetKind),
			attribute.String("target.name", targetName),
		),
	)
}

// StartApprovalSpan starts a span for an approval decision.
func StartApprovalSpan(ctx context.Context, approvalID, state string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "approval",
		trace.WithAttributes(
			attribute.String("approval.id", approvalID),
			attribute.String("approval.state", state),
		),
	)
}
