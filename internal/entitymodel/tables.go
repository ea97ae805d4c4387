// Package entitymodel declares the backend tables the core writes to. The
// declarations drive DDL for the SQL backends and the column sets of the
// in-memory backend.
package entitymodel

import (
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// ColumnType is a dialect-neutral column type.
type ColumnType string

// Column types.
const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
)

// Column describes one table column.
type Column struct {
	Name     string
	Type     ColumnType
	Required bool
}

// Table describes one backend table.
type Table struct {
	Name    string
	Entity  domain.EntityType
	Columns []Column
}

// TransitionLogTable stores transition attempt records.
const TransitionLogTable = "registro_transiciones"

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// RequiredColumns returns the NOT NULL columns.
func (t Table) RequiredColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if c.Required {
			out = append(out, c.Name)
		}
	}
	return out
}

// HasColumn reports whether name is declared.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func text(name string) Column      { return Column{Name: name, Type: TypeText} }
func required(name string) Column  { return Column{Name: name, Type: TypeText, Required: true} }
func integer(name string) Column   { return Column{Name: name, Type: TypeInteger} }
func decimal(name string) Column   { return Column{Name: name, Type: TypeReal} }
func flag(name string) Column      { return Column{Name: name, Type: TypeBoolean, Required: true} }
func timestamp(name string) Column { return Column{Name: name, Type: TypeTimestamp} }

func entityTable(entity domain.EntityType, lifecycle bool, cols ...Column) Table {
	all := []Column{required(domain.IDColumn)}
	if lifecycle {
		all = append(all, required(domain.StatusColumn))
	}
	all = append(all, cols...)
	all = append(all, timestamp("created_at"), timestamp("updated_at"))
	return Table{Name: entity.Table(), Entity: entity, Columns: all}
}

var tables = []Table{
	entityTable(domain.EntityCompany, true,
		required("nombre"), text("cif"), text("sector"), text("municipio"),
		text("email"), text("telefono"), text("tecnico_id"), text("observaciones")),
	entityTable(domain.EntityAdvisory, true,
		required("empresa_id"), text("tema"), timestamp("fecha"), decimal("duracion_horas"),
		text("tecnico_id"), text("notas")),
	entityTable(domain.EntityEvent, true,
		required("titulo"), text("tipo"), timestamp("fecha_inicio"), timestamp("fecha_fin"),
		text("lugar"), integer("aforo"), text("descripcion")),
	entityTable(domain.EntityTraining, true,
		required("titulo"), text("modalidad"), timestamp("fecha_inicio"), timestamp("fecha_fin"),
		decimal("horas"), integer("plazas"), text("descripcion")),
	entityTable(domain.EntityCollaborator, true,
		required("nombre"), text("organizacion"), text("email"), text("telefono"), text("tipo")),
	entityTable(domain.EntityMaterial, true,
		required("titulo"), text("tipo"), text("url"), text("descripcion")),
	entityTable(domain.EntityDisseminationImpact, true,
		required("titulo"), text("canal"), timestamp("fecha"), integer("alcance"), text("url")),
	entityTable(domain.EntityTask, true,
		required("titulo"), text("descripcion"), text("responsable_id"), timestamp("fecha_limite"),
		text("prioridad"), text("entidad"), text("entidad_id")),
	entityTable(domain.EntityGrant, false,
		required("titulo"), text("organismo"), decimal("importe"), text("convocatoria"),
		timestamp("fecha_resolucion")),
	entityTable(domain.EntityGeneric, true,
		required("nombre"), text("descripcion")),
	{
		Name: TransitionLogTable,
		Columns: []Column{
			required("id"), required("entidad"), required("registro_id"),
			text("estado_anterior"), required("estado_nuevo"), flag("permitido"),
			text("usuario_id"), text("roles"), text("motivo"), timestamp("creado_en"),
		},
	},
}

// Tables returns every declared table in declaration order.
func Tables() []Table {
	out := make([]Table, len(tables))
	for i, t := range tables {
		out[i] = Table{Name: t.Name, Entity: t.Entity, Columns: append([]Column(nil), t.Columns...)}
	}
	return out
}

// Lookup returns the table named name.
func Lookup(name string) (Table, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
