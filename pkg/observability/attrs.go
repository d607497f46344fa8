package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Semantic-convention-style attribute keys for engine-plane spans and metrics.
var (
	AttrEnvelopeOp     = attribute.Key("uicp.envelope.op")
	AttrWindowID       = attribute.Key("uicp.window.id")
	AttrTraceID        = attribute.Key("uicp.trace.id")
	AttrJobID          = attribute.Key("uicp.job.id")
	AttrTask           = attribute.Key("uicp.job.task")
	AttrPolicyDecision = attribute.Key("uicp.policy.decision")
	AttrCacheHit       = attribute.Key("uicp.cache.hit")
)

// EnvelopeOperation returns span/metric attributes for a dispatched envelope.
func EnvelopeOperation(op, windowID, traceID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvelopeOp.String(op),
		AttrWindowID.String(windowID),
		AttrTraceID.String(traceID),
	}
}

// JobOperation returns span/metric attributes for a compute job lifecycle event.
func JobOperation(jobID, task string, cacheHit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrJobID.String(jobID),
		AttrTask.String(task),
		AttrCacheHit.Bool(cacheHit),
	}
}

// PolicyDecisionOperation returns span/metric attributes for a policy gate decision.
func PolicyDecisionOperation(op, decision string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvelopeOp.String(op),
		AttrPolicyDecision.String(decision),
	}
}

// SpanFromContext returns the current span in ctx, or a no-op span if none is set.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent records an event on the current span in ctx. No-op if there is none.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records the outcome of the current span in ctx based on err.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
