package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/memory"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

var (
	adminActor   = domain.Actor{ID: "u-admin", Roles: domain.NewRoleSet(domain.RoleAdmin)}
	tecnicoActor = domain.Actor{ID: "u-tec", Roles: domain.NewRoleSet(domain.RoleTecnico)}
	auditorActor = domain.Actor{ID: "u-aud", Roles: domain.NewRoleSet(domain.RoleAuditor)}
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type captureMetricsRecorder struct {
	calls []Observation
}

func (c *captureMetricsRecorder) Observe(_ context.Context, obs Observation) {
	c.calls = append(c.calls, obs)
}

func (c *captureMetricsRecorder) has(op string, outcome AuditStatus) bool {
	for _, call := range c.calls {
		if call.Operation == op && call.Outcome == outcome {
			return true
		}
	}
	return false
}

type spanRecord struct {
	info SpanInfo
	err  error
}

type captureTracer struct {
	started []SpanInfo
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, info SpanInfo) (context.Context, TraceSpan) {
	c.started = append(c.started, info)
	return ctx, &captureSpan{tracer: c, info: info}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.info.Operation == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	info   SpanInfo
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{info: s.info, err: err})
}

type logRecord struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.level == level {
			n++
		}
	}
	return n
}

// captureAuditor collects transition attempts; err is returned from every call.
type captureAuditor struct {
	mu       sync.Mutex
	attempts []TransitionAttempt
	err      error
}

func (a *captureAuditor) RecordTransition(_ context.Context, attempt TransitionAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempt)
	return a.err
}

func (a *captureAuditor) recorded() []TransitionAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]TransitionAttempt(nil), a.attempts...)
}

// blockingAuditor holds every call until release is closed.
type blockingAuditor struct {
	release chan struct{}
	done    chan struct{}
}

func (a *blockingAuditor) RecordTransition(context.Context, TransitionAttempt) error {
	<-a.release
	close(a.done)
	return fmt.Errorf("audit sink unavailable")
}

// failingBackend wraps a memory store and fails the selected operations.
type failingBackend struct {
	*memory.Store
	insertErr error
	updateErr error
	deleteErr error
	selectErr error
}

func (b *failingBackend) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	if b.insertErr != nil {
		return nil, b.insertErr
	}
	return b.Store.Insert(ctx, table, row)
}

func (b *failingBackend) Update(ctx context.Context, table string, values domain.Row, filters ...domain.Filter) ([]domain.Row, error) {
	if b.updateErr != nil {
		return nil, b.updateErr
	}
	return b.Store.Update(ctx, table, values, filters...)
}

func (b *failingBackend) Delete(ctx context.Context, table string, filters ...domain.Filter) (int, error) {
	if b.deleteErr != nil {
		return 0, b.deleteErr
	}
	return b.Store.Delete(ctx, table, filters...)
}

func (b *failingBackend) Select(ctx context.Context, table string, filters ...domain.Filter) ([]domain.Row, error) {
	if b.selectErr != nil {
		return nil, b.selectErr
	}
	return b.Store.Select(ctx, table, filters...)
}

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	base := []Option{
		WithClock(fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))),
		WithIDGenerator(sequentialIDs("rec")),
	}
	return NewService(store, append(base, opts...)...), store
}

func createCompany(t *testing.T, svc *Service, fields domain.Row) domain.Row {
	t.Helper()
	payload := domain.Row{"nombre": "Acme"}
	for k, v := range fields {
		payload[k] = v
	}
	res, err := svc.Create(context.Background(), tecnicoActor, domain.EntityCompany, payload)
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	return res.Record
}
