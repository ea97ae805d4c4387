package postgres

import (
	"fmt"
	"strings"

	"github.com/mg15best/impulsa-lov-sub001/internal/entitymodel"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// Grants maps each mutating action to the roles the database lets through.
type Grants map[domain.Action]domain.RoleSet

var (
	staffWrite = domain.NewRoleSet(domain.RoleAdmin, domain.RoleTecnico)
	adminWrite = domain.NewRoleSet(domain.RoleAdmin)
	anyRole    = domain.NewRoleSet(domain.RoleAdmin, domain.RoleTecnico, domain.RoleAuditor, domain.RoleIT, domain.RoleNone)
)

func restrictedDelete() Grants {
	return Grants{domain.ActionCreate: staffWrite, domain.ActionEdit: staffWrite, domain.ActionDelete: adminWrite}
}

func staffGrants() Grants {
	return Grants{domain.ActionCreate: staffWrite, domain.ActionEdit: staffWrite, domain.ActionDelete: staffWrite}
}

// RowSecurityGrants are the row level security grants installed by
// RowSecurityDDL, keyed by table. The console's policy engine must never allow
// more than what is listed here.
var RowSecurityGrants = map[string]Grants{
	string(domain.EntityCompany):             restrictedDelete(),
	string(domain.EntityAdvisory):            restrictedDelete(),
	string(domain.EntityEvent):               restrictedDelete(),
	string(domain.EntityTraining):            restrictedDelete(),
	string(domain.EntityGrant):               restrictedDelete(),
	string(domain.EntityCollaborator):        restrictedDelete(),
	string(domain.EntityMaterial):            staffGrants(),
	string(domain.EntityDisseminationImpact): staffGrants(),
	string(domain.EntityTask):                staffGrants(),
	string(domain.EntityGeneric):             staffGrants(),
	entitymodel.TransitionLogTable: {
		domain.ActionCreate: anyRole,
		domain.ActionEdit:   adminWrite,
		domain.ActionDelete: adminWrite,
	},
}

const hasRoleFunction = `CREATE OR REPLACE FUNCTION impulsa_has_role(VARIADIC wanted text[]) RETURNS boolean
LANGUAGE sql STABLE AS $$
  SELECT string_to_array(coalesce(current_setting('impulsa.roles', true), ''), ',') && wanted
$$`

// RowSecurityDDL renders one statement per element enabling row level security
// and installing a policy per action for every table in RowSecurityGrants.
// Statements carry no trailing semicolon and must be executed one at a time.
func RowSecurityDDL() []string {
	stmts := []string{hasRoleFunction}
	for _, t := range entitymodel.Tables() {
		grants, ok := RowSecurityGrants[t.Name]
		if !ok {
			continue
		}
		stmts = append(stmts,
			fmt.Sprintf(`ALTER TABLE %q ENABLE ROW LEVEL SECURITY`, t.Name),
			dropPolicy(t.Name, "select"),
			fmt.Sprintf(`CREATE POLICY %s ON %q FOR SELECT USING (true)`, policyName(t.Name, "select"), t.Name),
		)
		if roles, ok := grants[domain.ActionCreate]; ok {
			stmts = append(stmts, dropPolicy(t.Name, "insert"),
				fmt.Sprintf(`CREATE POLICY %s ON %q FOR INSERT WITH CHECK (%s)`, policyName(t.Name, "insert"), t.Name, hasRole(roles)))
		}
		if roles, ok := grants[domain.ActionEdit]; ok {
			stmts = append(stmts, dropPolicy(t.Name, "update"),
				fmt.Sprintf(`CREATE POLICY %s ON %q FOR UPDATE USING (%s) WITH CHECK (%s)`, policyName(t.Name, "update"), t.Name, hasRole(roles), hasRole(roles)))
		}
		if roles, ok := grants[domain.ActionDelete]; ok {
			stmts = append(stmts, dropPolicy(t.Name, "delete"),
				fmt.Sprintf(`CREATE POLICY %s ON %q FOR DELETE USING (%s)`, policyName(t.Name, "delete"), t.Name, hasRole(roles)))
		}
	}
	return stmts
}

func policyName(table, op string) string {
	return fmt.Sprintf("%s_%s", table, op)
}

func dropPolicy(table, op string) string {
	return fmt.Sprintf(`DROP POLICY IF EXISTS %s ON %q`, policyName(table, op), table)
}

func hasRole(roles domain.RoleSet) string {
	if len(roles) == 0 {
		return "false"
	}
	quoted := make([]string, len(roles))
	for i, r := range roles {
		quoted[i] = "'" + string(r) + "'"
	}
	return "impulsa_has_role(" + strings.Join(quoted, ", ") + ")"
}
