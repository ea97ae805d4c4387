package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// Service gates every write to the backend: the actor must be authorized, the
// state change must be legal and inserts are reconciled with the live schema.
type Service struct {
	backend  domain.Backend
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	auditor  TransitionAuditor
	attempts int
	newID    func() string
	wg       sync.WaitGroup
}

const updatedAtColumn = "updated_at"

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder records per-operation outcomes.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer wraps operations in spans.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder receives one AuditEntry per operation.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithTransitionAuditor records every Transition attempt.
func WithTransitionAuditor(auditor TransitionAuditor) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

// WithInsertAttempts sets the initial insert attempt budget.
func WithInsertAttempts(n int) Option {
	return func(s *Service) {
		s.attempts = n
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a service over backend.
func NewService(backend domain.Backend, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		logger:   noopLogger{},
		clock:    systemClock{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		audit:    noopAudit{},
		attempts: DefaultInsertAttempts,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Service) Backend() domain.Backend { return s.backend }

// Wait blocks until pending transition audit writes finish.
func (s *Service) Wait() { s.wg.Wait() }

// CreateResult reports a successful create.
type CreateResult struct {
	Record         domain.Row
	Attempts       int
	RemovedColumns []string
}

type operation struct {
	name   string
	entity domain.EntityType
	action domain.Action
	actor  domain.Actor
	start  time.Time
	span   TraceSpan
}

func (s *Service) begin(ctx context.Context, name string, entity domain.EntityType, action domain.Action, actor domain.Actor) (context.Context, *operation) {
	ctx = domain.WithActor(ctx, actor)
	ctx, span := s.tracer.Start(ctx, SpanInfo{Operation: name, Entity: entity, Action: action, ActorID: actor.ID})
	return ctx, &operation{name: name, entity: entity, action: action, actor: actor, start: s.clock.Now(), span: span}
}

func (s *Service) end(ctx context.Context, op *operation, id string, err error) {
	now := s.clock.Now()
	duration := now.Sub(op.start)
	outcome := OutcomeOf(err)
	s.metrics.Observe(ctx, Observation{Operation: op.name, Entity: op.entity, Outcome: outcome, Duration: duration})
	op.span.End(err)
	entry := AuditEntry{
		Operation: op.name,
		Entity:    op.entity,
		Action:    op.action,
		EntityID:  id,
		ActorID:   op.actor.ID,
		Status:    outcome,
		Duration:  duration,
		Timestamp: now,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
	if err != nil {
		s.logger.Debug("operation failed", "operation", op.name, "entity", op.entity, "id", id, "error", err)
	}
}

func checkEntity(entity domain.EntityType) error {
	if !entity.Valid() {
		return fmt.Errorf("unknown entity type %q", entity)
	}
	return nil
}

// Create authorizes and inserts payload as a new record of entity. Lifecycle
// entities default the status column to their initial state; an undeclared
// state is rejected before the backend is called.
func (s *Service) Create(ctx context.Context, actor domain.Actor, entity domain.EntityType, payload domain.Row) (res CreateResult, err error) {
	ctx, op := s.begin(ctx, "create", entity, domain.ActionCreate, actor)
	var id string
	defer func() { s.end(ctx, op, id, err) }()

	if err = checkEntity(entity); err != nil {
		return CreateResult{}, err
	}
	if err = Authorize(actor.Roles, domain.ActionCreate, entity); err != nil {
		return CreateResult{}, err
	}

	row := payload.Clone()
	if row == nil {
		row = domain.Row{}
	}
	protected := []string{domain.IDColumn}
	if g, ok := graphFor(entity); ok {
		protected = append(protected, domain.StatusColumn)
		state, present := stateOf(row)
		switch {
		case !present:
			state, _ = InitialState(entity)
		case !g.Declares(state):
			return CreateResult{}, undeclaredState(g, state)
		}
		row[domain.StatusColumn] = string(state)
	}
	if existing, ok := row.String(domain.IDColumn); !ok || existing == "" {
		row[domain.IDColumn] = s.newID()
	}
	id, _ = row.String(domain.IDColumn)
	stamp := s.clock.Now().UTC().Format(time.RFC3339Nano)
	for _, col := range []string{"created_at", "updated_at"} {
		if _, ok := row[col]; !ok {
			row[col] = stamp
		}
	}

	table := entity.Table()
	result := InsertWithSchemaFallback(ctx, InsertRequest{
		Table:   table,
		Payload: row,
		Insert: func(ctx context.Context, p domain.Row) (domain.Row, error) {
			return s.backend.Insert(ctx, table, p)
		},
		MaxAttempts: s.attempts,
		Protected:   protected,
		Logger:      s.logger,
	})
	res = CreateResult{Record: result.Data, Attempts: result.Attempts, RemovedColumns: result.RemovedColumns}
	if result.Err != nil {
		return res, result.Err
	}
	if len(result.RemovedColumns) > 0 {
		s.logger.Info("record created with pruned payload", "table", table, "id", id, "removed", strings.Join(result.RemovedColumns, ","))
	}
	return res, nil
}

// Update authorizes an edit and applies values to the record id. When values
// change the status column the move must be legal from the stored state.
func (s *Service) Update(ctx context.Context, actor domain.Actor, entity domain.EntityType, id string, values domain.Row) (row domain.Row, err error) {
	ctx, op := s.begin(ctx, "update", entity, domain.ActionEdit, actor)
	defer func() { s.end(ctx, op, id, err) }()

	if err = checkEntity(entity); err != nil {
		return nil, err
	}
	if err = Authorize(actor.Roles, domain.ActionEdit, entity); err != nil {
		return nil, err
	}
	changes := values.Clone()
	delete(changes, domain.IDColumn)
	if next, present := stateOf(changes); present && HasLifecycle(entity) {
		current, err := s.load(ctx, entity, id)
		if err != nil {
			return nil, err
		}
		from, ok := stateOf(current)
		if !ok || from == "" {
			return nil, &domain.TransitionError{Entity: entity, To: next, Explanation: missingState(entity, id)}
		}
		if !CanTransition(entity, from, next) {
			return nil, &domain.TransitionError{Entity: entity, From: from, To: next, Explanation: Explain(entity, from, next)}
		}
		changes[domain.StatusColumn] = string(next)
	}
	var stamped []string
	if _, ok := changes[updatedAtColumn]; !ok {
		changes[updatedAtColumn] = s.clock.Now().UTC().Format(time.RFC3339Nano)
		stamped = append(stamped, updatedAtColumn)
	}
	return s.write(ctx, entity, id, changes, stamped...)
}

// Transition moves record id of entity to next. Every attempt, legal or not,
// is handed to the transition auditor without blocking the caller.
func (s *Service) Transition(ctx context.Context, actor domain.Actor, entity domain.EntityType, id string, next domain.State) (row domain.Row, err error) {
	ctx, op := s.begin(ctx, "transition", entity, domain.ActionEdit, actor)
	defer func() { s.end(ctx, op, id, err) }()

	if err = checkEntity(entity); err != nil {
		return nil, err
	}
	if err = Authorize(actor.Roles, domain.ActionEdit, entity); err != nil {
		return nil, err
	}
	if !HasLifecycle(entity) {
		return nil, fmt.Errorf("%s has no lifecycle", entity)
	}
	current, err := s.load(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	from, hasState := stateOf(current)
	hasState = hasState && from != ""
	allowed := hasState && CanTransition(entity, from, next)
	attempt := TransitionAttempt{
		Entity:   entity,
		RecordID: id,
		From:     from,
		To:       next,
		Allowed:  allowed,
		ActorID:  actor.ID,
		Roles:    actor.Roles.Strings(),
		At:       s.clock.Now().UTC(),
	}
	if !allowed {
		explanation := Explain(entity, from, next)
		if !hasState {
			explanation = missingState(entity, id)
		}
		attempt.Reason = explanation
		s.recordAttempt(ctx, attempt)
		return nil, &domain.TransitionError{Entity: entity, From: from, To: next, Explanation: explanation}
	}
	s.recordAttempt(ctx, attempt)
	return s.write(ctx, entity, id, domain.Row{
		domain.StatusColumn: string(next),
		updatedAtColumn:     s.clock.Now().UTC().Format(time.RFC3339Nano),
	}, updatedAtColumn)
}

// Delete authorizes and removes record id of entity.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, entity domain.EntityType, id string) (err error) {
	ctx, op := s.begin(ctx, "delete", entity, domain.ActionDelete, actor)
	defer func() { s.end(ctx, op, id, err) }()

	if err = checkEntity(entity); err != nil {
		return err
	}
	if err = Authorize(actor.Roles, domain.ActionDelete, entity); err != nil {
		return err
	}
	n, err := s.backend.Delete(ctx, entity.Table(), domain.Eq(domain.IDColumn, id))
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound{Entity: entity, ID: id}
	}
	return nil
}

// Get returns record id of entity.
func (s *Service) Get(ctx context.Context, entity domain.EntityType, id string) (domain.Row, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	return s.load(ctx, entity, id)
}

// ValidNextStates lists the states a record in current may move to, current first.
func (s *Service) ValidNextStates(entity domain.EntityType, current domain.State) []domain.State {
	return ValidNextStates(entity, current)
}

func (s *Service) load(ctx context.Context, entity domain.EntityType, id string) (domain.Row, error) {
	rows, err := s.backend.Select(ctx, entity.Table(), domain.Eq(domain.IDColumn, id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound{Entity: entity, ID: id}
	}
	return rows[0], nil
}

// write updates record id with values. Columns listed in stamped were added
// by the service rather than the caller; a drift report naming one of them
// drops it and retries. Any other error is returned unchanged.
func (s *Service) write(ctx context.Context, entity domain.EntityType, id string, values domain.Row, stamped ...string) (domain.Row, error) {
	table := entity.Table()
	values = values.Clone()
	for {
		if len(values) == 0 {
			return s.load(ctx, entity, id)
		}
		rows, err := s.backend.Update(ctx, table, values, domain.Eq(domain.IDColumn, id))
		if err != nil {
			col, _, ok := ParseMissingColumn(err)
			if !ok || !slices.Contains(stamped, col) {
				return nil, err
			}
			stamped = slices.DeleteFunc(slices.Clone(stamped), func(c string) bool { return c == col })
			delete(values, col)
			s.logger.Warn("schema drift: dropping column", "table", table, "column", col, "id", id)
			continue
		}
		if len(rows) == 0 {
			return nil, domain.ErrNotFound{Entity: entity, ID: id}
		}
		return rows[0], nil
	}
}

func (s *Service) recordAttempt(ctx context.Context, attempt TransitionAttempt) {
	if s.auditor == nil {
		return
	}
	attempt.ID = s.newID()
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.auditor.RecordTransition(ctx, attempt); err != nil {
			s.logger.Debug("transition audit failed", "entity", attempt.Entity, "id", attempt.RecordID, "error", err)
		}
	}()
}

func stateOf(row domain.Row) (domain.State, bool) {
	raw, ok := row[domain.StatusColumn]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case domain.State:
		return v, true
	case string:
		return domain.State(v), true
	default:
		return domain.State(fmt.Sprint(v)), true
	}
}

func quotedStates(g *TransitionGraph) string {
	states := g.States()
	quoted := make([]string, len(states))
	for i, st := range states {
		quoted[i] = fmt.Sprintf("%q", st)
	}
	return strings.Join(quoted, ", ")
}

func undeclaredState(g *TransitionGraph, state domain.State) error {
	return &domain.TransitionError{
		Entity:      g.Entity(),
		To:          state,
		Explanation: fmt.Sprintf("%q is not a state of %s; valid states: %s", state, g.Label(), quotedStates(g)),
	}
}

// missingState explains a lifecycle record stored without a status.
func missingState(entity domain.EntityType, id string) string {
	g, _ := graphFor(entity)
	return fmt.Sprintf("%s %q has no %s value; expected one of %s", g.Label(), id, domain.StatusColumn, quotedStates(g))
}

// IsBackendError reports whether err carries a *domain.BackendError and returns it.
func IsBackendError(err error) (*domain.BackendError, bool) {
	var be *domain.BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
