package core

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// OutcomeTotals counts finished operations by outcome.
type OutcomeTotals struct {
	Success    int64   `json:"success"`
	Denied     int64   `json:"denied"`
	Error      int64   `json:"error"`
	DurationMS float64 `json:"duration_ms,omitempty"`
}

func (t *OutcomeTotals) add(outcome AuditStatus) {
	switch outcome {
	case AuditStatusSuccess:
		t.Success++
	case AuditStatusDenied:
		t.Denied++
	default:
		t.Error++
	}
}

// ExpvarSnapshot is the document published under the recorder's name.
// Operations are keyed by operation name, Entities by table and then
// operation.
type ExpvarSnapshot struct {
	Operations map[string]OutcomeTotals            `json:"operations"`
	Entities   map[string]map[string]OutcomeTotals `json:"entities"`
}

// ExpvarMetricsRecorder keeps per-operation and per-entity outcome totals and
// publishes them through expvar.
type ExpvarMetricsRecorder struct {
	name       string
	mu         sync.Mutex
	operations map[string]*OutcomeTotals
	entities   map[string]map[string]*OutcomeTotals
}

// NewExpvarMetricsRecorder publishes a recorder under name. expvar rejects
// duplicate names, so an empty name gets a generated one.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("impulsa_core_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:       name,
		operations: make(map[string]*OutcomeTotals),
		entities:   make(map[string]map[string]*OutcomeTotals),
	}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder. Latency is only summed per operation.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, obs Observation) {
	if obs.Operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operations[obs.Operation]
	if !ok {
		op = &OutcomeTotals{}
		r.operations[obs.Operation] = op
	}
	op.add(obs.Outcome)
	op.DurationMS += float64(obs.Duration) / float64(time.Millisecond)

	if obs.Entity == "" {
		return
	}
	table := obs.Entity.Table()
	byOp, ok := r.entities[table]
	if !ok {
		byOp = make(map[string]*OutcomeTotals)
		r.entities[table] = byOp
	}
	totals, ok := byOp[obs.Operation]
	if !ok {
		totals = &OutcomeTotals{}
		byOp[obs.Operation] = totals
	}
	totals.add(obs.Outcome)
}

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := ExpvarSnapshot{
		Operations: make(map[string]OutcomeTotals, len(r.operations)),
		Entities:   make(map[string]map[string]OutcomeTotals, len(r.entities)),
	}
	for name, totals := range r.operations {
		snap.Operations[name] = *totals
	}
	for table, byOp := range r.entities {
		cpy := make(map[string]OutcomeTotals, len(byOp))
		for name, totals := range byOp {
			cpy[name] = *totals
		}
		snap.Entities[table] = cpy
	}
	return snap
}
