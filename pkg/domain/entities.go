// Package domain defines the entity kinds, roles, actions and backend
// primitives shared by the impulsa policy and consistency core.
package domain

import (
	"strings"
)

// EntityType identifies which lifecycle and policy rule set applies to a
// record. The tag doubles as the backend table name.
type EntityType string

// Supported entity type identifiers.
const (
	// EntityCompany identifies a company record.
	EntityCompany EntityType = "empresas"
	// EntityAdvisory identifies an advisory engagement with a company.
	EntityAdvisory EntityType = "asesorias"
	// EntityEvent identifies an event record.
	EntityEvent EntityType = "eventos"
	// EntityTraining identifies a training course.
	EntityTraining EntityType = "formaciones"
	// EntityCollaborator identifies an external collaborator.
	EntityCollaborator EntityType = "colaboradores"
	// EntityMaterial identifies a published material.
	EntityMaterial EntityType = "materiales"
	// EntityDisseminationImpact identifies a dissemination impact record.
	EntityDisseminationImpact EntityType = "impactos_difusion"
	// EntityTask identifies a follow-up task.
	EntityTask EntityType = "tareas"
	// EntityGrant identifies a grant. Grants carry write policy but no lifecycle.
	EntityGrant EntityType = "subvenciones"
	// EntityGeneric identifies records governed by the generic rule set.
	EntityGeneric EntityType = "generico"
)

var entityTypes = []EntityType{
	EntityCompany,
	EntityAdvisory,
	EntityEvent,
	EntityTraining,
	EntityCollaborator,
	EntityMaterial,
	EntityDisseminationImpact,
	EntityTask,
	EntityGrant,
	EntityGeneric,
}

// EntityTypes returns every known entity type in declaration order.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// Valid reports whether the entity type belongs to the closed set.
func (e EntityType) Valid() bool {
	for _, known := range entityTypes {
		if e == known {
			return true
		}
	}
	return false
}

// Table returns the backend table that stores records of this type.
func (e EntityType) Table() string { return string(e) }

// State is a lifecycle stage value, meaningful only within one entity type's graph.
type State string

// StatusColumn is the backend column holding an entity's lifecycle state.
const StatusColumn = "estado"

// IDColumn is the backend primary key column.
const IDColumn = "id"

// Action enumerates the mutating operations gated by the permission policy.
type Action string

// Mutating actions.
const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Valid reports whether the action is one of create, edit or delete.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionEdit, ActionDelete:
		return true
	default:
		return false
	}
}

// Role is an actor's assigned capability class.
type Role string

// Known roles.
const (
	RoleAdmin   Role = "admin"
	RoleTecnico Role = "tecnico"
	RoleAuditor Role = "auditor"
	RoleIT      Role = "it"
	RoleNone    Role = "ninguno"
)

var roleLabels = map[Role]string{
	RoleAdmin:   "Admin",
	RoleTecnico: "Technical staff",
	RoleAuditor: "Auditor",
	RoleIT:      "IT",
	RoleNone:    "No role",
}

// Label returns the human readable name used in user-facing messages.
func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// RoleSet is an ordered, duplicate-free collection of roles held by one actor.
type RoleSet []Role

// NewRoleSet builds a set from the given roles, dropping duplicates while
// keeping first-seen order.
func NewRoleSet(roles ...Role) RoleSet {
	out := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		if !out.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// ParseRoles splits a comma or whitespace separated list into a RoleSet.
// Unknown tokens are dropped.
func ParseRoles(raw string) RoleSet {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	roles := make([]Role, 0, len(fields))
	for _, f := range fields {
		role := Role(strings.ToLower(strings.TrimSpace(f)))
		if role.Valid() {
			roles = append(roles, role)
		}
	}
	return NewRoleSet(roles...)
}

// Has reports whether the set contains role.
func (s RoleSet) Has(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Add returns a new set containing role. The receiver is not modified.
func (s RoleSet) Add(role Role) RoleSet {
	out := make(RoleSet, len(s), len(s)+1)
	copy(out, s)
	if out.Has(role) {
		return out
	}
	return append(out, role)
}

// Strings returns the raw role tags.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Actor identifies who performs a mutation.
type Actor struct {
	ID    string
	Roles RoleSet
}
