package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "impulsa.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func backendError(t *testing.T, err error) *domain.BackendError {
	t.Helper()
	var be *domain.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected *domain.BackendError, got %T %v", err, err)
	}
	return be
}

func TestStoreCRUD(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		row, err := store.Insert(ctx, "empresas", domain.Row{"id": id, "estado": "pendiente", "nombre": "Empresa " + id})
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
		if row["id"] != id || row["nombre"] != "Empresa "+id {
			t.Fatalf("returned row %v", row)
		}
	}

	rows, err := store.Update(ctx, "empresas", domain.Row{"estado": "en_proceso"}, domain.In("id", "e1", "e3"))
	if err != nil || len(rows) != 2 {
		t.Fatalf("update: %d rows (%v)", len(rows), err)
	}

	rows, err = store.Select(ctx, "empresas", domain.Eq("estado", "en_proceso"))
	if err != nil || len(rows) != 2 || rows[0]["id"] != "e1" || rows[1]["id"] != "e3" {
		t.Fatalf("select = %v (%v)", rows, err)
	}

	n, err := store.Delete(ctx, "empresas", domain.Neq("id", "e2"))
	if err != nil || n != 2 {
		t.Fatalf("delete removed %d (%v)", n, err)
	}
	rows, _ = store.Select(ctx, "empresas")
	if len(rows) != 1 || rows[0]["id"] != "e2" {
		t.Fatalf("remaining = %v", rows)
	}
}

func TestStoreReportsDriftInBackendVocabulary(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.DropColumn(ctx, "empresas", "telefono"); err != nil {
		t.Fatalf("drop column: %v", err)
	}
	_, err := store.Insert(ctx, "empresas", domain.Row{"id": "e1", "estado": "pendiente", "nombre": "Acme", "telefono": "600"})
	be := backendError(t, err)
	if be.Code != domain.CodeMissingColumn {
		t.Fatalf("code = %s (%s)", be.Code, be.Message)
	}
	if be.Message != "Could not find the 'telefono' column of 'empresas' in the schema cache" {
		t.Fatalf("message = %q", be.Message)
	}
}

func TestStoreConstraintErrors(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "empresas", domain.Row{"id": "e1", "estado": "pendiente"})
	be := backendError(t, err)
	if be.Code != "23502" {
		t.Fatalf("missing nombre: code = %s (%s)", be.Code, be.Message)
	}
	if !strings.Contains(be.Message, "NOT NULL constraint failed: empresas.nombre") || be.Message != be.Cause.Error() {
		t.Fatalf("driver message should be kept verbatim, got %q", be.Message)
	}

	if _, err := store.Insert(ctx, "empresas", domain.Row{"id": "e1", "estado": "pendiente", "nombre": "Acme"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = store.Insert(ctx, "empresas", domain.Row{"id": "e1", "estado": "pendiente", "nombre": "Acme"})
	be = backendError(t, err)
	if be.Code != "23505" {
		t.Fatalf("duplicate id: code = %s (%s)", be.Code, be.Message)
	}
	if !strings.Contains(be.Message, "UNIQUE constraint failed: empresas.id") || be.Message != be.Cause.Error() {
		t.Fatalf("driver message should be kept verbatim, got %q", be.Message)
	}
}

func TestStoreUnknownTableAndIdentifiers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Select(ctx, "clientes")
	if be := backendError(t, err); be.Code != domain.CodeUndefinedRel {
		t.Fatalf("unknown table: code = %s (%s)", be.Code, be.Message)
	}
	_, err = store.Insert(ctx, "bad name", domain.Row{"id": "x"})
	if be := backendError(t, err); be.Code != "42602" {
		t.Fatalf("invalid identifier: code = %s", be.Code)
	}
}

func TestInMemoryDatabase(t *testing.T) {
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() != ":memory:" {
		t.Fatalf("path = %q", store.Path())
	}
	ctx := context.Background()
	if _, err := store.Insert(ctx, "tareas", domain.Row{"id": "t1", "estado": "pendiente", "titulo": "Llamar"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows, err := store.Select(ctx, "tareas")
	if err != nil || len(rows) != 1 {
		t.Fatalf("select = %v (%v)", rows, err)
	}
}
