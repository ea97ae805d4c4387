package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mg15best/impulsa-lov-sub001/internal/blob"
	"github.com/mg15best/impulsa-lov-sub001/internal/entitymodel"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// TransitionAttempt records one requested lifecycle change, legal or not.
type TransitionAttempt struct {
	ID       string            `json:"id"`
	Entity   domain.EntityType `json:"entity"`
	RecordID string            `json:"record_id"`
	From     domain.State      `json:"from"`
	To       domain.State      `json:"to"`
	Allowed  bool              `json:"allowed"`
	ActorID  string            `json:"actor_id,omitempty"`
	Roles    []string          `json:"roles,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	At       time.Time         `json:"at"`
}

// TransitionAuditor persists transition attempts. The service calls it from a
// detached goroutine and discards returned errors after logging them.
type TransitionAuditor interface {
	RecordTransition(ctx context.Context, attempt TransitionAttempt) error
}

// BackendTransitionAuditor writes attempts to a backend table through the
// resilient insert adapter, so a log table lagging behind the model still
// accepts the columns it knows.
type BackendTransitionAuditor struct {
	backend     domain.Backend
	table       string
	maxAttempts int
	logger      Logger
}

// NewBackendTransitionAuditor targets table (entitymodel.TransitionLogTable
// when empty). maxAttempts is the insert budget; zero uses DefaultInsertAttempts.
func NewBackendTransitionAuditor(backend domain.Backend, table string, maxAttempts int, logger Logger) *BackendTransitionAuditor {
	if table == "" {
		table = entitymodel.TransitionLogTable
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &BackendTransitionAuditor{backend: backend, table: table, maxAttempts: maxAttempts, logger: logger}
}

// Table returns the destination table.
func (a *BackendTransitionAuditor) Table() string { return a.table }

// MaxAttempts returns the configured insert budget.
func (a *BackendTransitionAuditor) MaxAttempts() int { return a.maxAttempts }

// RecordTransition implements TransitionAuditor.
func (a *BackendTransitionAuditor) RecordTransition(ctx context.Context, attempt TransitionAttempt) error {
	row := domain.Row{
		"id":              attempt.ID,
		"entidad":         string(attempt.Entity),
		"registro_id":     attempt.RecordID,
		"estado_anterior": string(attempt.From),
		"estado_nuevo":    string(attempt.To),
		"permitido":       attempt.Allowed,
		"usuario_id":      attempt.ActorID,
		"roles":           strings.Join(attempt.Roles, ","),
		"motivo":          attempt.Reason,
		"creado_en":       attempt.At.UTC().Format(time.RFC3339Nano),
	}
	res := InsertWithSchemaFallback(ctx, InsertRequest{
		Table:   a.table,
		Payload: row,
		Insert: func(ctx context.Context, payload domain.Row) (domain.Row, error) {
			return a.backend.Insert(ctx, a.table, payload)
		},
		MaxAttempts: a.maxAttempts,
		Protected:   []string{"id", "permitido"},
		Logger:      a.logger,
	})
	if res.Err != nil {
		return fmt.Errorf("record transition %s: %w", attempt.ID, res.Err)
	}
	return nil
}

// ArchiveTransitionAuditor writes one JSON document per attempt to a blob store.
type ArchiveTransitionAuditor struct {
	store  blob.Store
	prefix string
}

// DefaultArchivePrefix is the key prefix for archived attempts.
const DefaultArchivePrefix = "audit/transitions"

// NewArchiveTransitionAuditor archives into store under prefix (DefaultArchivePrefix when empty).
func NewArchiveTransitionAuditor(store blob.Store, prefix string) *ArchiveTransitionAuditor {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	return &ArchiveTransitionAuditor{store: store, prefix: strings.TrimSuffix(prefix, "/")}
}

// Key returns the blob key for attempt: <prefix>/YYYY/MM/DD/<id>.json.
func (a *ArchiveTransitionAuditor) Key(attempt TransitionAttempt) string {
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, attempt.At.UTC().Format("2006/01/02"), attempt.ID)
}

// RecordTransition implements TransitionAuditor.
func (a *ArchiveTransitionAuditor) RecordTransition(ctx context.Context, attempt TransitionAttempt) error {
	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode transition %s: %w", attempt.ID, err)
	}
	_, err = a.store.Put(ctx, a.Key(attempt), bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"entity":  string(attempt.Entity),
			"allowed": fmt.Sprint(attempt.Allowed),
		},
	})
	if err != nil {
		return fmt.Errorf("archive transition %s: %w", attempt.ID, err)
	}
	return nil
}

// MultiTransitionAuditor fans an attempt out to every sink. All sinks are
// tried; their errors are joined.
type MultiTransitionAuditor []TransitionAuditor

// RecordTransition implements TransitionAuditor.
func (m MultiTransitionAuditor) RecordTransition(ctx context.Context, attempt TransitionAttempt) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.RecordTransition(ctx, attempt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
