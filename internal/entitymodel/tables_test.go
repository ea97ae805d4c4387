package entitymodel

import (
	"testing"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

func TestEveryEntityHasTable(t *testing.T) {
	for _, entity := range domain.EntityTypes() {
		table, ok := Lookup(entity.Table())
		if !ok {
			t.Fatalf("no table for %s", entity)
		}
		if table.Entity != entity || !table.HasColumn(domain.IDColumn) {
			t.Fatalf("table %s: %+v", entity, table)
		}
		lifecycle := entity != domain.EntityGrant
		if table.HasColumn(domain.StatusColumn) != lifecycle {
			t.Fatalf("%s: status column presence should be %v", entity, lifecycle)
		}
	}
	if _, ok := Lookup(TransitionLogTable); !ok {
		t.Fatalf("transition log table missing")
	}
}

func TestTablesReturnsCopies(t *testing.T) {
	first := Tables()
	first[0].Columns[0].Name = "mutated"
	if Tables()[0].Columns[0].Name != domain.IDColumn {
		t.Fatalf("Tables leaked column slices")
	}
}

func TestRequiredColumns(t *testing.T) {
	table, _ := Lookup("empresas")
	req := table.RequiredColumns()
	want := []string{"id", "estado", "nombre"}
	if len(req) != len(want) {
		t.Fatalf("required = %v", req)
	}
	for i := range want {
		if req[i] != want[i] {
			t.Fatalf("required = %v, want %v", req, want)
		}
	}
	names := table.ColumnNames()
	if names[len(names)-1] != "updated_at" {
		t.Fatalf("timestamps should close the column list: %v", names)
	}
}
