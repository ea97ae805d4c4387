// Package sqlite provides a domain.Backend on an embedded SQLite database
// using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mg15best/impulsa-lov-sub001/internal/entitymodel/sqlbundle"
	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/sqlquery"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.Backend = (*Store)(nil)

// Store persists rows in SQLite tables created from the entity model.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and applies the
// entity-model DDL. ":memory:" opens a private in-memory database.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "impulsa.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.SQLite()) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Insert adds one row and returns it as stored.
func (s *Store) Insert(ctx context.Context, table string, payload domain.Row) (domain.Row, error) {
	stmt, err := sqlquery.Insert(sqlquery.Question, table, payload)
	if err != nil {
		return nil, invalidStatement(table, err)
	}
	rows, err := s.query(ctx, table, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.BackendError{Code: domain.CodeNoRows, Message: "insert returned no rows", Table: table}
	}
	return rows[0], nil
}

// Update applies values to matching rows and returns them.
func (s *Store) Update(ctx context.Context, table string, values domain.Row, filters ...domain.Filter) ([]domain.Row, error) {
	stmt, err := sqlquery.Update(sqlquery.Question, table, values, filters)
	if err != nil {
		return nil, invalidStatement(table, err)
	}
	return s.query(ctx, table, stmt)
}

// Delete removes matching rows and returns how many were removed.
func (s *Store) Delete(ctx context.Context, table string, filters ...domain.Filter) (int, error) {
	stmt, err := sqlquery.Delete(sqlquery.Question, table, filters)
	if err != nil {
		return 0, invalidStatement(table, err)
	}
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, translateError(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, translateError(table, err)
	}
	return int(n), nil
}

// Select returns matching rows in insertion order.
func (s *Store) Select(ctx context.Context, table string, filters ...domain.Filter) ([]domain.Row, error) {
	stmt, err := sqlquery.Select(sqlquery.Question, table, filters, "rowid")
	if err != nil {
		return nil, invalidStatement(table, err)
	}
	return s.query(ctx, table, stmt)
}

func (s *Store) query(ctx context.Context, table string, stmt sqlquery.Statement) ([]domain.Row, error) {
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, translateError(table, err)
	}
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, translateError(table, err)
	}
	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, translateError(table, err)
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(table, err)
	}
	return out, nil
}

// DropColumn removes a column, mirroring an out-of-band migration.
func (s *Store) DropColumn(ctx context.Context, table, column string) error {
	tbl, err := sqlquery.Quote(table)
	if err != nil {
		return err
	}
	col, err := sqlquery.Quote(column)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tbl, col)); err != nil {
		return fmt.Errorf("drop column %s.%s: %w", table, column, err)
	}
	return nil
}

var (
	noColumnNamed = regexp.MustCompile(`table "?([A-Za-z0-9_]+)"? has no column named "?([A-Za-z0-9_]+)"?`)
	noSuchColumn  = regexp.MustCompile(`no such column: "?([A-Za-z0-9_.]+)"?`)
	noSuchTable   = regexp.MustCompile(`no such table: "?([A-Za-z0-9_.]+)"?`)
	notNull       = regexp.MustCompile(`NOT NULL constraint failed`)
	uniqueFailed  = regexp.MustCompile(`UNIQUE constraint failed`)
)

// translateError maps SQLite driver messages onto the hosted backend's error
// vocabulary so callers see one set of messages regardless of driver.
func translateError(table string, err error) error {
	msg := err.Error()
	if m := noColumnNamed.FindStringSubmatch(msg); m != nil {
		missing := domain.NewMissingColumnError(m[1], m[2])
		missing.Cause = err
		return missing
	}
	if m := noSuchColumn.FindStringSubmatch(msg); m != nil {
		missing := domain.NewMissingColumnError(table, m[1])
		missing.Cause = err
		return missing
	}
	if noSuchTable.MatchString(msg) {
		unknown := domain.NewUnknownTableError(table)
		unknown.Cause = err
		return unknown
	}
	if notNull.MatchString(msg) {
		return &domain.BackendError{Code: "23502", Message: msg, Table: table, Cause: err}
	}
	if uniqueFailed.MatchString(msg) {
		return &domain.BackendError{Code: "23505", Message: msg, Table: table, Cause: err}
	}
	return &domain.BackendError{Code: domain.CodeBackend, Message: msg, Table: table, Cause: err}
}

func invalidStatement(table string, err error) error {
	return &domain.BackendError{Code: "42602", Message: err.Error(), Table: table, Cause: err}
}
