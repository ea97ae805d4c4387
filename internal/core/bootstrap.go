package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/mg15best/impulsa-lov-sub001/internal/blob"
	"github.com/mg15best/impulsa-lov-sub001/internal/config"
)

// TracerName is the instrumentation scope used for OpenTelemetry spans.
const TracerName = "github.com/mg15best/impulsa-lov-sub001/internal/core"

// Bootstrap opens the configured backend and archive store and returns a
// Service wired with the configured metrics, tracing and transition auditors.
// The returned CloseFunc waits for pending audit writes and releases the backend.
func Bootstrap(ctx context.Context, cfg config.Config, logger Logger, opts ...Option) (*Service, CloseFunc, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	backend, closeBackend, err := OpenBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return nil, nil, err
	}

	tracer, closeTrace, err := openTracer(cfg.Trace)
	if err != nil {
		_ = closeBackend()
		return nil, nil, fmt.Errorf("trace: %w", err)
	}
	release := func() error {
		return errors.Join(closeTrace(), closeBackend())
	}

	base := []Option{
		WithLogger(logger),
		WithInsertAttempts(cfg.Insert.MaxAttempts),
		WithTracer(tracer),
	}
	switch strings.ToLower(cfg.Metrics) {
	case config.MetricsExpvar:
		base = append(base, WithMetricsRecorder(NewExpvarMetricsRecorder("")))
	case config.MetricsPrometheus:
		recorder, err := NewPrometheusMetricsRecorder(nil)
		if err != nil {
			_ = release()
			return nil, nil, fmt.Errorf("metrics: %w", err)
		}
		base = append(base, WithMetricsRecorder(recorder))
	}

	if cfg.Audit.Enabled {
		var sinks MultiTransitionAuditor
		sinks = append(sinks, NewBackendTransitionAuditor(backend, cfg.Audit.Table, cfg.Insert.MaxAttempts, logger))
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			_ = release()
			return nil, nil, fmt.Errorf("archive: %w", err)
		}
		if store != nil {
			sinks = append(sinks, NewArchiveTransitionAuditor(store, ""))
			logger.Info("archiving transition attempts", "driver", store.Driver())
		}
		base = append(base, WithTransitionAuditor(sinks))
	}

	svc := NewService(backend, append(base, opts...)...)
	closeFn := func() error {
		svc.Wait()
		return release()
	}
	return svc, closeFn, nil
}

// openTracer builds the configured tracer. The returned function closes a
// trace file opened for the json mode.
func openTracer(cfg config.TraceConfig) (Tracer, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(cfg.Mode) {
	case config.TraceNone:
		return noopTracer{}, nop, nil
	case config.TraceJSON:
		if cfg.File == "" {
			return NewJSONTracer(os.Stderr), nop, nil
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return NewJSONTracer(f), f.Close, nil
	default:
		return NewOTelTracer(otel.Tracer(TracerName)), nop, nil
	}
}
