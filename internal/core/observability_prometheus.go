package core

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation counts and latencies as
// Prometheus collectors.
type PrometheusMetricsRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the core collectors on reg. A nil
// registerer uses prometheus.DefaultRegisterer. Collectors already registered
// on reg are reused.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "impulsa",
			Subsystem: "core",
			Name:      "operations_total",
			Help:      "Service operations by name, entity table and outcome (success, denied, error).",
		}, []string{"operation", "entity", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "impulsa",
			Subsystem: "core",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency, including insert retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if err := reg.Register(rec.total); err != nil {
		existing, ok := alreadyRegistered[*prometheus.CounterVec](err)
		if !ok {
			return nil, err
		}
		rec.total = existing
	}
	if err := reg.Register(rec.duration); err != nil {
		existing, ok := alreadyRegistered[*prometheus.HistogramVec](err)
		if !ok {
			return nil, err
		}
		rec.duration = existing
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, obs Observation) {
	if obs.Operation == "" {
		return
	}
	r.total.WithLabelValues(obs.Operation, obs.Entity.Table(), string(obs.Outcome)).Inc()
	r.duration.WithLabelValues(obs.Operation).Observe(obs.Duration.Seconds())
}

// alreadyRegistered returns the collector registered earlier under the same
// descriptor so repeated construction shares one set of series.
func alreadyRegistered[T prometheus.Collector](err error) (T, bool) {
	var are prometheus.AlreadyRegisteredError
	var zero T
	if !errors.As(err, &are) {
		return zero, false
	}
	existing, ok := are.ExistingCollector.(T)
	return existing, ok
}
