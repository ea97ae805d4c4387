package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// JSONSpan is one line written by JSONTracer.
type JSONSpan struct {
	Operation  string            `json:"operation"`
	Entity     domain.EntityType `json:"entity,omitempty"`
	Action     domain.Action     `json:"action,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Outcome    AuditStatus       `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMS float64           `json:"duration_ms"`
}

// JSONTracer writes one JSON line per ended span. It suits local runs of the
// CLI where no collector is available.
type JSONTracer struct {
	mu    sync.Mutex
	enc   *json.Encoder
	clock Clock
	spans []JSONSpan
	keep  bool
}

// NewJSONTracer writes spans to w. A nil writer keeps them in memory for Spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{clock: systemClock{}}
	if w == nil {
		t.keep = true
	} else {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Spans returns the spans kept by a tracer built without a writer.
func (t *JSONTracer) Spans() []JSONSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONSpan(nil), t.spans...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, info SpanInfo) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, info: info, started: t.clock.Now().UTC()}
}

func (t *JSONTracer) emit(span JSONSpan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.keep {
		t.spans = append(t.spans, span)
		return
	}
	_ = t.enc.Encode(span)
}

type jsonSpan struct {
	tracer  *JSONTracer
	info    SpanInfo
	started time.Time
}

func (s *jsonSpan) End(err error) {
	span := JSONSpan{
		Operation:  s.info.Operation,
		Entity:     s.info.Entity,
		Action:     s.info.Action,
		ActorID:    s.info.ActorID,
		Outcome:    OutcomeOf(err),
		StartedAt:  s.started,
		DurationMS: float64(s.tracer.clock.Now().Sub(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		span.Error = err.Error()
	}
	s.tracer.emit(span)
}
