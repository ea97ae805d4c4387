package core

import (
	"strings"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// PolicyRule lists, per action, the roles authorized to perform it on one
// entity kind. Role order is preserved for display.
type PolicyRule struct {
	Create domain.RoleSet
	Edit   domain.RoleSet
	Delete domain.RoleSet
}

// Roles returns the authorized roles for action, or nil for unknown actions.
func (r PolicyRule) Roles(action domain.Action) domain.RoleSet {
	switch action {
	case domain.ActionCreate:
		return r.Create
	case domain.ActionEdit:
		return r.Edit
	case domain.ActionDelete:
		return r.Delete
	default:
		return nil
	}
}

var writeRoles = domain.NewRoleSet(domain.RoleAdmin, domain.RoleTecnico)

var adminOnly = domain.NewRoleSet(domain.RoleAdmin)

// genericPolicy applies to every entity without an explicit rule.
var genericPolicy = PolicyRule{
	Create: writeRoles,
	Edit:   writeRoles,
	Delete: writeRoles,
}

// restrictedDeletePolicy mirrors the backend rules for core business records:
// technical staff may create and edit but only admins delete.
var restrictedDeletePolicy = PolicyRule{
	Create: writeRoles,
	Edit:   writeRoles,
	Delete: adminOnly,
}

// policyFor returns the configured rule for entity and whether it was
// configured explicitly.
func policyFor(entity domain.EntityType) (PolicyRule, bool) {
	switch entity {
	case domain.EntityCompany,
		domain.EntityAdvisory,
		domain.EntityEvent,
		domain.EntityTraining,
		domain.EntityGrant,
		domain.EntityCollaborator:
		return restrictedDeletePolicy, true
	case domain.EntityMaterial,
		domain.EntityDisseminationImpact,
		domain.EntityTask,
		domain.EntityGeneric:
		return genericPolicy, false
	default:
		return genericPolicy, false
	}
}

// Policy returns the rule governing entity.
func Policy(entity domain.EntityType) PolicyRule {
	rule, _ := policyFor(entity)
	return rule
}

// AllowedRoles returns the roles authorized to perform action on entity.
func AllowedRoles(action domain.Action, entity domain.EntityType) domain.RoleSet {
	rule, _ := policyFor(entity)
	return append(domain.RoleSet(nil), rule.Roles(action)...)
}

// IsActionAllowed reports whether any role in roles is authorized to perform
// action on entity. The answer is advisory; the backend's row level security
// remains the final authority.
func IsActionAllowed(roles domain.RoleSet, action domain.Action, entity domain.EntityType) bool {
	rule, _ := policyFor(entity)
	for _, allowed := range rule.Roles(action) {
		if roles.Has(allowed) {
			return true
		}
	}
	return false
}

// AllowedRolesLabel renders the authorized roles for messages, e.g.
// "Admin or Technical staff".
func AllowedRolesLabel(action domain.Action, entity domain.EntityType) string {
	rule, _ := policyFor(entity)
	roles := rule.Roles(action)
	labels := make([]string, len(roles))
	for i, r := range roles {
		labels[i] = r.Label()
	}
	switch len(labels) {
	case 0:
		return "no role"
	case 1:
		return labels[0]
	default:
		return strings.Join(labels[:len(labels)-1], ", ") + " or " + labels[len(labels)-1]
	}
}

// Authorize returns a *domain.PermissionError when roles may not perform
// action on entity.
func Authorize(roles domain.RoleSet, action domain.Action, entity domain.EntityType) error {
	if IsActionAllowed(roles, action, entity) {
		return nil
	}
	return &domain.PermissionError{
		Action:  action,
		Entity:  entity,
		Allowed: AllowedRolesLabel(action, entity),
	}
}
