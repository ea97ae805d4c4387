// Package sqlbundle renders entity-model DDL bundles for the SQL backends.
package sqlbundle

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/mg15best/impulsa-lov-sub001/internal/entitymodel"
)

// Dialect selects column type names.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var typeNames = map[Dialect]map[entitymodel.ColumnType]string{
	DialectSQLite: {
		entitymodel.TypeText:      "TEXT",
		entitymodel.TypeInteger:   "INTEGER",
		entitymodel.TypeReal:      "REAL",
		entitymodel.TypeBoolean:   "INTEGER",
		entitymodel.TypeTimestamp: "TEXT",
	},
	DialectPostgres: {
		entitymodel.TypeText:      "TEXT",
		entitymodel.TypeInteger:   "BIGINT",
		entitymodel.TypeReal:      "DOUBLE PRECISION",
		entitymodel.TypeBoolean:   "BOOLEAN",
		entitymodel.TypeTimestamp: "TIMESTAMPTZ",
	},
}

// SQLite returns the SQLite DDL for every declared table.
func SQLite() string {
	return Render(DialectSQLite, entitymodel.Tables())
}

// Postgres returns the Postgres DDL for every declared table.
func Postgres() string {
	return Render(DialectPostgres, entitymodel.Tables())
}

// Render builds one CREATE TABLE IF NOT EXISTS statement per table.
func Render(dialect Dialect, tables []entitymodel.Table) string {
	names := typeNames[dialect]
	var b strings.Builder
	for _, t := range tables {
		fmt.Fprintf(&b, "-- %s\n", t.Name)
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %q (\n", t.Name)
		for i, c := range t.Columns {
			typ, ok := names[c.Type]
			if !ok {
				typ = "TEXT"
			}
			line := fmt.Sprintf("  %q %s", c.Name, typ)
			if c.Name == "id" {
				line += " PRIMARY KEY"
			} else if c.Required {
				line += " NOT NULL"
			}
			if i < len(t.Columns)-1 {
				line += ","
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString(");\n\n")
	}
	return b.String()
}

// SplitStatements splits a semicolon-terminated script into statements,
// dropping blank lines and "--" comment lines.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}
