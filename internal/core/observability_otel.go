package core

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys set by OTelTracer.
const (
	AttrEntity  = attribute.Key("impulsa.entity")
	AttrAction  = attribute.Key("impulsa.action")
	AttrActor   = attribute.Key("impulsa.actor_id")
	AttrOutcome = attribute.Key("impulsa.outcome")
)

// OTelTracer adapts an OpenTelemetry tracer to Tracer.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer wraps t.
func NewOTelTracer(t trace.Tracer) *OTelTracer {
	return &OTelTracer{tracer: t}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, info SpanInfo) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, info.Operation, trace.WithAttributes(
		AttrEntity.String(string(info.Entity)),
		AttrAction.String(string(info.Action)),
		AttrActor.String(info.ActorID),
	))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	s.span.SetAttributes(AttrOutcome.String(string(OutcomeOf(err))))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
