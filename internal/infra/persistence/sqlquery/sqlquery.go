// Package sqlquery builds parameterized statements from domain rows and filters
// for the SQL backends.
package sqlquery

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question renders "?" placeholders (SQLite).
func Question(int) string { return "?" }

// Dollar renders "$n" placeholders (Postgres).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Quote validates and double-quotes an identifier.
func Quote(ident string) (string, error) {
	if !identPattern.MatchString(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}

// Statement is a query and its bind arguments.
type Statement struct {
	SQL  string
	Args []any
}

type builder struct {
	ph   Placeholder
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.ph(len(b.args))
}

func (b *builder) where(filters []domain.Filter) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		col, err := Quote(f.Column)
		if err != nil {
			return "", err
		}
		switch f.Op {
		case domain.OpEq:
			clauses = append(clauses, col+" = "+b.bind(f.Value))
		case domain.OpNeq:
			clauses = append(clauses, col+" <> "+b.bind(f.Value))
		case domain.OpIn:
			values, _ := f.Value.([]any)
			if len(values) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			marks := make([]string, len(values))
			for i, v := range values {
				marks[i] = b.bind(v)
			}
			clauses = append(clauses, col+" IN ("+strings.Join(marks, ", ")+")")
		default:
			return "", fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func sortedColumns(row domain.Row) []string {
	cols := row.Columns()
	sort.Strings(cols)
	return cols
}

// Insert builds INSERT ... RETURNING *.
func Insert(ph Placeholder, table string, payload domain.Row) (Statement, error) {
	tbl, err := Quote(table)
	if err != nil {
		return Statement{}, err
	}
	b := &builder{ph: ph}
	cols := sortedColumns(payload)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		if quoted[i], err = Quote(c); err != nil {
			return Statement{}, err
		}
		marks[i] = b.bind(payload[c])
	}
	var sql string
	if len(cols) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", tbl)
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *", tbl, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	}
	return Statement{SQL: sql, Args: b.args}, nil
}

// Update builds UPDATE ... SET ... WHERE ... RETURNING *.
func Update(ph Placeholder, table string, values domain.Row, filters []domain.Filter) (Statement, error) {
	tbl, err := Quote(table)
	if err != nil {
		return Statement{}, err
	}
	if len(values) == 0 {
		return Statement{}, fmt.Errorf("update %s: no values", table)
	}
	b := &builder{ph: ph}
	cols := sortedColumns(values)
	sets := make([]string, len(cols))
	for i, c := range cols {
		q, err := Quote(c)
		if err != nil {
			return Statement{}, err
		}
		sets[i] = q + " = " + b.bind(values[c])
	}
	where, err := b.where(filters)
	if err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", tbl, strings.Join(sets, ", "), where)
	return Statement{SQL: sql, Args: b.args}, nil
}

// Delete builds DELETE FROM ... WHERE ....
func Delete(ph Placeholder, table string, filters []domain.Filter) (Statement, error) {
	tbl, err := Quote(table)
	if err != nil {
		return Statement{}, err
	}
	b := &builder{ph: ph}
	where, err := b.where(filters)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DELETE FROM " + tbl + where, Args: b.args}, nil
}

// Select builds SELECT * FROM ... WHERE ... with an optional ORDER BY clause.
func Select(ph Placeholder, table string, filters []domain.Filter, orderBy string) (Statement, error) {
	tbl, err := Quote(table)
	if err != nil {
		return Statement{}, err
	}
	b := &builder{ph: ph}
	where, err := b.where(filters)
	if err != nil {
		return Statement{}, err
	}
	sql := "SELECT * FROM " + tbl + where
	if orderBy != "" {
		sql += " ORDER BY " + orderBy
	}
	return Statement{SQL: sql, Args: b.args}, nil
}
