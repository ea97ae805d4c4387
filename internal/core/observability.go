package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// Logger is the minimal structured logger used by the core.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewSlogLogger adapts a *slog.Logger. A nil logger uses slog.Default.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return l
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Observation is one finished service operation as seen by metrics.
type Observation struct {
	Operation string
	Entity    domain.EntityType
	Outcome   AuditStatus
	Duration  time.Duration
}

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, obs Observation)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, Observation) {}

// SpanInfo names the operation a span covers.
type SpanInfo struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	ActorID   string
}

// TraceSpan is ended once per operation with its final error.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, info SpanInfo) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ SpanInfo) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// AuditStatus classifies an operation outcome.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
	AuditStatusDenied  AuditStatus = "denied"
)

// AuditEntry describes one service operation for audit consumers.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	ActorID   string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries synchronously. Implementations must not block.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// OutcomeOf classifies an operation error. Permission and lifecycle
// rejections are denials; anything else is an error.
func OutcomeOf(err error) AuditStatus {
	switch {
	case err == nil:
		return AuditStatusSuccess
	case domain.IsPermissionDenied(err), domain.IsInvalidTransition(err):
		return AuditStatusDenied
	default:
		return AuditStatusError
	}
}
