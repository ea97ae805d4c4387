package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/memory"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

func TestServiceCreateDefaultsInitialState(t *testing.T) {
	svc, store := newTestService(t)
	res, err := svc.Create(context.Background(), tecnicoActor, domain.EntityCompany, domain.Row{"nombre": "Acme", "sector": "industria"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Attempts != 1 || len(res.RemovedColumns) != 0 {
		t.Fatalf("attempts=%d removed=%v", res.Attempts, res.RemovedColumns)
	}
	if res.Record["estado"] != string(CompanyPending) {
		t.Fatalf("estado = %v, want pendiente", res.Record["estado"])
	}
	if res.Record["id"] != "rec-1" {
		t.Fatalf("id = %v, want generated rec-1", res.Record["id"])
	}
	if res.Record["created_at"] != "2024-03-01T09:00:00Z" {
		t.Fatalf("created_at = %v", res.Record["created_at"])
	}
	rows, err := store.Select(context.Background(), "empresas")
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one stored row, got %d (%v)", len(rows), err)
	}
}

func TestServiceCreateKeepsCallerPayload(t *testing.T) {
	svc, _ := newTestService(t)
	payload := domain.Row{"nombre": "Acme"}
	if _, err := svc.Create(context.Background(), adminActor, domain.EntityCompany, payload); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(payload) != 1 {
		t.Fatalf("caller payload mutated: %v", payload)
	}
}

func TestServiceCreateRejectsUndeclaredState(t *testing.T) {
	svc, store := newTestService(t)
	_, err := svc.Create(context.Background(), adminActor, domain.EntityAdvisory, domain.Row{"empresa_id": "e1", "estado": "aprobada"})
	var te *domain.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if !strings.Contains(te.Explanation, `"solicitada"`) {
		t.Fatalf("explanation should list valid states: %q", te.Explanation)
	}
	if store.Calls("insert") != 0 {
		t.Fatalf("backend must not be called for an invalid state")
	}
}

func TestServiceCreateAcceptsExplicitDeclaredState(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Create(context.Background(), adminActor, domain.EntityCollaborator, domain.Row{"nombre": "Ana", "estado": domain.State("inactivo")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Record["estado"] != "inactivo" {
		t.Fatalf("estado = %#v", res.Record["estado"])
	}
}

func TestServiceCreateDeniedBeforeBackend(t *testing.T) {
	svc, store := newTestService(t)
	_, err := svc.Create(context.Background(), auditorActor, domain.EntityCompany, domain.Row{"nombre": "Acme"})
	if !domain.IsPermissionDenied(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if store.Calls("insert") != 0 {
		t.Fatalf("backend must not be called when unauthorized")
	}
}

func TestServiceCreateUnknownEntity(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Create(context.Background(), adminActor, domain.EntityType("clientes"), domain.Row{}); err == nil {
		t.Fatalf("expected error for unknown entity")
	}
}

func TestServiceCreatePrunesDriftedColumns(t *testing.T) {
	logger := &captureLogger{}
	svc, store := newTestService(t, WithLogger(logger))
	store.DropColumn("empresas", "telefono")
	store.DropColumn("empresas", "updated_at")

	res, err := svc.Create(context.Background(), tecnicoActor, domain.EntityCompany, domain.Row{"nombre": "Acme", "telefono": "600000000"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if strings.Join(res.RemovedColumns, ",") != "telefono,updated_at" {
		t.Fatalf("removed = %v", res.RemovedColumns)
	}
	if logger.count("warn") != 2 {
		t.Fatalf("expected a warning per pruned column, got %d", logger.count("warn"))
	}
}

func TestServiceCreateProtectsStatusColumn(t *testing.T) {
	svc, store := newTestService(t)
	store.DropColumn("empresas", "estado")
	_, err := svc.Create(context.Background(), tecnicoActor, domain.EntityCompany, domain.Row{"nombre": "Acme"})
	be, ok := IsBackendError(err)
	if !ok || be.Code != domain.CodeMissingColumn {
		t.Fatalf("expected drift error on the status column to be terminal, got %v", err)
	}
}

func TestServiceCreatePropagatesTerminalBackendError(t *testing.T) {
	rls := domain.NewRowSecurityError("empresas")
	backend := &failingBackend{Store: memory.NewStore(), insertErr: rls}
	svc := NewService(backend)
	res, err := svc.Create(context.Background(), tecnicoActor, domain.EntityCompany, domain.Row{"nombre": "Acme"})
	if err != rls {
		t.Fatalf("expected the backend error unchanged, got %v", err)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
}

func TestServiceUpdateChecksTransition(t *testing.T) {
	svc, _ := newTestService(t)
	rec := createCompany(t, svc, nil)
	id := rec["id"].(string)
	ctx := context.Background()

	row, err := svc.Update(ctx, tecnicoActor, domain.EntityCompany, id, domain.Row{"estado": "en_proceso", "sector": "turismo"})
	if err != nil {
		t.Fatalf("legal update: %v", err)
	}
	if row["estado"] != "en_proceso" || row["sector"] != "turismo" {
		t.Fatalf("unexpected row %v", row)
	}

	if _, err := svc.Update(ctx, tecnicoActor, domain.EntityCompany, id, domain.Row{"estado": "pendiente"}); !domain.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition en_proceso -> pendiente, got %v", err)
	}

	row, err = svc.Update(ctx, tecnicoActor, domain.EntityCompany, id, domain.Row{"observaciones": "visita", "id": "otro"})
	if err != nil {
		t.Fatalf("plain update: %v", err)
	}
	if row["id"] != id {
		t.Fatalf("update must not rewrite the id, got %v", row["id"])
	}
}

func TestServiceUpdateSelfTransitionAllowed(t *testing.T) {
	svc, _ := newTestService(t)
	rec := createCompany(t, svc, domain.Row{"estado": "completada"})
	if _, err := svc.Update(context.Background(), adminActor, domain.EntityCompany, rec["id"].(string), domain.Row{"estado": "completada", "observaciones": "cerrada"}); err != nil {
		t.Fatalf("self transition on a terminal state must be allowed: %v", err)
	}
}

func TestServiceUpdateMissingRecord(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Update(context.Background(), adminActor, domain.EntityCompany, "nope", domain.Row{"estado": "completada"})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = svc.Update(context.Background(), adminActor, domain.EntityCompany, "nope", domain.Row{"sector": "x"})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found for plain update, got %v", err)
	}
}

func TestServiceWritesSurviveDroppedUpdatedAt(t *testing.T) {
	svc, store := newTestService(t)
	store.DropColumn("empresas", "updated_at")
	ctx := context.Background()

	res, err := svc.Create(ctx, tecnicoActor, domain.EntityCompany, domain.Row{"nombre": "Acme"})
	if err != nil || strings.Join(res.RemovedColumns, ",") != "updated_at" {
		t.Fatalf("create: removed=%v err=%v", res.RemovedColumns, err)
	}
	id := res.Record["id"].(string)

	row, err := svc.Transition(ctx, tecnicoActor, domain.EntityCompany, id, CompanyInProgress)
	if err != nil {
		t.Fatalf("transition with drifted updated_at: %v", err)
	}
	if row["estado"] != string(CompanyInProgress) {
		t.Fatalf("estado = %v", row["estado"])
	}
	if _, ok := row["updated_at"]; ok {
		t.Fatalf("dropped column written back: %v", row)
	}

	row, err = svc.Update(ctx, tecnicoActor, domain.EntityCompany, id, domain.Row{"nombre": "Beta", "estado": "asesorada"})
	if err != nil || row["nombre"] != "Beta" || row["estado"] != "asesorada" {
		t.Fatalf("update with drifted updated_at: row=%v err=%v", row, err)
	}

	row, err = svc.Update(ctx, tecnicoActor, domain.EntityCompany, id, nil)
	if err != nil || row["nombre"] != "Beta" {
		t.Fatalf("empty update should return the stored record: row=%v err=%v", row, err)
	}
}

func TestServiceUpdateKeepsCallerColumnsOnDrift(t *testing.T) {
	svc, store := newTestService(t)
	rec := createCompany(t, svc, nil)
	id := rec["id"].(string)
	store.DropColumn("empresas", "sector")
	store.DropColumn("empresas", "updated_at")
	before := store.Calls("update")

	_, err := svc.Update(context.Background(), tecnicoActor, domain.EntityCompany, id, domain.Row{"sector": "industria"})
	if col, _, ok := ParseMissingColumn(err); !ok || col != "sector" {
		t.Fatalf("caller column drift must surface, got %v", err)
	}
	_, err = svc.Update(context.Background(), tecnicoActor, domain.EntityCompany, id, domain.Row{"updated_at": "2024-03-02T00:00:00Z"})
	if col, _, ok := ParseMissingColumn(err); !ok || col != "updated_at" {
		t.Fatalf("caller supplied timestamp must not be pruned, got %v", err)
	}
	if got := store.Calls("update") - before; got != 2 {
		t.Fatalf("expected one backend update per call, got %d", got)
	}
}

func TestServiceTransitionRecordWithoutState(t *testing.T) {
	auditor := &captureAuditor{}
	svc, store := newTestService(t, WithTransitionAuditor(auditor))
	rec := createCompany(t, svc, nil)
	id := rec["id"].(string)
	store.DropColumn("empresas", "estado")
	store.AddColumn("empresas", "estado")

	_, err := svc.Transition(context.Background(), tecnicoActor, domain.EntityCompany, id, CompanyInProgress)
	var te *domain.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransitionError, got %v", err)
	}
	if !strings.Contains(te.Explanation, "has no estado value") || strings.Contains(te.Explanation, "terminal") {
		t.Fatalf("explanation = %q", te.Explanation)
	}
	svc.Wait()
	attempts := auditor.recorded()
	if len(attempts) != 1 || attempts[0].Allowed || attempts[0].Reason != te.Explanation {
		t.Fatalf("attempts = %+v", attempts)
	}

	_, err = svc.Update(context.Background(), tecnicoActor, domain.EntityCompany, id, domain.Row{"estado": "en_proceso"})
	if !errors.As(err, &te) || !strings.Contains(te.Explanation, `"pendiente"`) {
		t.Fatalf("update on a record without state: %v", err)
	}
}

func TestServiceTransitionRecordsAttempts(t *testing.T) {
	auditor := &captureAuditor{}
	svc, _ := newTestService(t, WithTransitionAuditor(auditor))
	rec := createCompany(t, svc, domain.Row{"estado": "asesorada"})
	id := rec["id"].(string)
	ctx := context.Background()

	row, err := svc.Transition(ctx, tecnicoActor, domain.EntityCompany, id, CompanyCompleted)
	if err != nil {
		t.Fatalf("asesorada -> completada: %v", err)
	}
	if row["estado"] != "completada" {
		t.Fatalf("estado = %v", row["estado"])
	}

	_, err = svc.Transition(ctx, tecnicoActor, domain.EntityCompany, id, CompanyInProgress)
	var te *domain.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != CompanyCompleted || te.To != CompanyInProgress || !strings.Contains(te.Explanation, "terminal") {
		t.Fatalf("unexpected transition error %+v", te)
	}

	svc.Wait()
	attempts := auditor.recorded()
	if len(attempts) != 2 {
		t.Fatalf("expected two recorded attempts, got %d", len(attempts))
	}
	byAllowed := map[bool]TransitionAttempt{}
	for _, a := range attempts {
		byAllowed[a.Allowed] = a
	}
	denied, ok := byAllowed[false]
	if !ok || denied.Reason == "" || denied.ActorID != tecnicoActor.ID || denied.RecordID != id {
		t.Fatalf("unexpected denied attempt %+v", denied)
	}
	if allowed, ok := byAllowed[true]; !ok || allowed.From != CompanyAdvised || allowed.ID == "" {
		t.Fatalf("unexpected allowed attempt %+v", allowed)
	}
}

func TestServiceTransitionAuditIsNonBlocking(t *testing.T) {
	logger := &captureLogger{}
	auditor := &blockingAuditor{release: make(chan struct{}), done: make(chan struct{})}
	svc, _ := newTestService(t, WithTransitionAuditor(auditor), WithLogger(logger))
	rec := createCompany(t, svc, nil)

	if _, err := svc.Transition(context.Background(), tecnicoActor, domain.EntityCompany, rec["id"].(string), CompanyInProgress); err != nil {
		t.Fatalf("transition returned %v while the audit sink was blocked", err)
	}
	close(auditor.release)
	select {
	case <-auditor.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("audit sink never ran")
	}
	svc.Wait()
	if logger.count("debug") == 0 {
		t.Fatalf("audit failure should be logged at debug level")
	}
}

func TestServiceTransitionAuditFailureDoesNotSurface(t *testing.T) {
	auditor := &captureAuditor{err: errors.New("sink down")}
	svc, _ := newTestService(t, WithTransitionAuditor(auditor))
	rec := createCompany(t, svc, nil)
	if _, err := svc.Transition(context.Background(), tecnicoActor, domain.EntityCompany, rec["id"].(string), CompanyCompleted); err != nil {
		t.Fatalf("audit failure leaked into the caller: %v", err)
	}
	svc.Wait()
}

func TestServiceTransitionRequiresEditRole(t *testing.T) {
	auditor := &captureAuditor{}
	svc, _ := newTestService(t, WithTransitionAuditor(auditor))
	rec := createCompany(t, svc, nil)
	_, err := svc.Transition(context.Background(), auditorActor, domain.EntityCompany, rec["id"].(string), CompanyInProgress)
	if !domain.IsPermissionDenied(err) {
		t.Fatalf("expected permission error, got %v", err)
	}
	svc.Wait()
	if len(auditor.recorded()) != 0 {
		t.Fatalf("unauthorized calls are not transition attempts")
	}
}

func TestServiceTransitionWithoutLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Transition(context.Background(), adminActor, domain.EntityGrant, "g1", "cerrada"); err == nil {
		t.Fatalf("expected error for an entity without lifecycle")
	}
}

func TestServiceDelete(t *testing.T) {
	svc, store := newTestService(t)
	rec := createCompany(t, svc, nil)
	id := rec["id"].(string)
	ctx := context.Background()

	if err := svc.Delete(ctx, tecnicoActor, domain.EntityCompany, id); !domain.IsPermissionDenied(err) {
		t.Fatalf("tecnico must not delete companies, got %v", err)
	}
	if store.Calls("delete") != 0 {
		t.Fatalf("denied delete reached the backend")
	}
	if err := svc.Delete(ctx, adminActor, domain.EntityCompany, id); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := svc.Delete(ctx, adminActor, domain.EntityCompany, id); !domain.IsNotFound(err) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
	if _, err := svc.Get(ctx, domain.EntityCompany, id); !domain.IsNotFound(err) {
		t.Fatalf("deleted record still readable: %v", err)
	}
}

func TestServiceDeleteFallbackEntityAllowsTecnico(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Create(context.Background(), tecnicoActor, domain.EntityTask, domain.Row{"titulo": "Llamar"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := svc.Delete(context.Background(), tecnicoActor, domain.EntityTask, res.Record["id"].(string)); err != nil {
		t.Fatalf("tecnico delete task: %v", err)
	}
}

func TestServiceGetPropagatesBackendError(t *testing.T) {
	boom := &domain.BackendError{Code: domain.CodeBackend, Message: "connection reset"}
	svc := NewService(&failingBackend{Store: memory.NewStore(), selectErr: boom})
	if _, err := svc.Get(context.Background(), domain.EntityCompany, "x"); err != boom {
		t.Fatalf("expected backend error unchanged, got %v", err)
	}
}

func TestServiceObservability(t *testing.T) {
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc, _ := newTestService(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	rec := createCompany(t, svc, nil)
	if _, err := svc.Create(ctx, auditorActor, domain.EntityCompany, domain.Row{"nombre": "x"}); err == nil {
		t.Fatalf("expected denial")
	}
	if err := svc.Delete(ctx, adminActor, domain.EntityCompany, "missing"); err == nil {
		t.Fatalf("expected not found")
	}

	if !audit.has("create", AuditStatusSuccess, func(e AuditEntry) bool { return e.EntityID == rec["id"] && e.ActorID == tecnicoActor.ID }) {
		t.Fatalf("missing successful create audit entry: %+v", audit.entries)
	}
	if !audit.has("create", AuditStatusDenied, nil) {
		t.Fatalf("missing denied create audit entry")
	}
	if !audit.has("delete", AuditStatusError, func(e AuditEntry) bool { return e.Error != "" }) {
		t.Fatalf("missing failed delete audit entry")
	}
	if !metrics.has("create", AuditStatusSuccess) || !metrics.has("create", AuditStatusDenied) || !metrics.has("delete", AuditStatusError) {
		t.Fatalf("unexpected metrics calls %+v", metrics.calls)
	}
	if metrics.calls[0].Entity != domain.EntityCompany {
		t.Fatalf("observation should carry the entity, got %+v", metrics.calls[0])
	}
	if first := tracer.started[0]; first.Entity != domain.EntityCompany || first.Action != domain.ActionCreate || first.ActorID != tecnicoActor.ID {
		t.Fatalf("span info = %+v", first)
	}
	if !tracer.has("create", true) || !tracer.has("delete", false) {
		t.Fatalf("unexpected spans %+v", tracer.ended)
	}
	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("every started span must end: started=%d ended=%d", len(tracer.started), len(tracer.ended))
	}
}

func TestServiceActorReachesBackendContext(t *testing.T) {
	var seen domain.Actor
	backend := &actorProbe{failingBackend: failingBackend{Store: memory.NewStore()}, seen: &seen}
	svc := NewService(backend)
	if _, err := svc.Create(context.Background(), tecnicoActor, domain.EntityCompany, domain.Row{"nombre": "Acme"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if seen.ID != tecnicoActor.ID || !seen.Roles.Has(domain.RoleTecnico) {
		t.Fatalf("backend context actor = %+v", seen)
	}
}

type actorProbe struct {
	failingBackend
	seen *domain.Actor
}

func (p *actorProbe) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	if actor, ok := domain.ActorFromContext(ctx); ok {
		*p.seen = actor
	}
	return p.failingBackend.Insert(ctx, table, row)
}

func TestServiceValidNextStates(t *testing.T) {
	svc, _ := newTestService(t)
	got := svc.ValidNextStates(domain.EntityAdvisory, AdvisoryScheduled)
	if len(got) != 3 || got[0] != AdvisoryScheduled || got[1] != AdvisoryInProgress || got[2] != AdvisoryCancelled {
		t.Fatalf("ValidNextStates = %v", got)
	}
}
