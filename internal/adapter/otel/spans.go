package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "a2a-validator"

// StartInitializeSpan starts a span covering card resolution and client
// construction for one session.
func StartInitializeSpan(ctx context.Context, sid, agentURL string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session.initialize",
		trace.WithAttributes(
			attribute.String("session.id", sid),
			attribute.String("agent.url", agentURL),
		),
	)
}

// StartDispatchSpan starts a span covering one message dispatch, including
// every streamed event it produces.
func StartDispatchSpan(ctx context.Context, sid, correlationID, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "message.dispatch",
		trace.WithAttributes(
			attribute.String("session.id", sid),
			attribute.String("message.id", correlationID),
			attribute.String("rpc.method", method),
		),
	)
}
