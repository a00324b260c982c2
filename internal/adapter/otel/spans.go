package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentdeck"

// StartRestartSpan starts a span covering both phases of an agent restart.
func StartRestartSpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.restart",
		trace.WithAttributes(attribute.String("agent.id", agentID)),
	)
}

// StartAuthSpan starts a span for an identity provider operation.
func StartAuthSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "auth."+operation)
}

// StartFetchSpan starts a span for a fetch-cache miss.
func StartFetchSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fetchcache.fetch",
		trace.WithAttributes(attribute.String("fetch.key", key)),
	)
}
