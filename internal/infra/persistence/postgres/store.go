// Package postgres provides a domain.Backend on Postgres using pgxpool. It
// applies the generated entity-model DDL on startup and can optionally scope
// each write to the caller's roles for row level security.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mg15best/impulsa-lov-sub001/internal/entitymodel/sqlbundle"
	"github.com/mg15best/impulsa-lov-sub001/internal/infra/persistence/sqlquery"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Backend = (*Store)(nil)

const defaultDSN = "postgres://localhost/impulsa?sslmode=disable"

// SessionRolesSetting is the transaction-local setting the row level security
// policies read the caller's roles from.
const SessionRolesSetting = "impulsa.roles"

// Options tune the store.
type Options struct {
	// RowSecurity runs every statement in a transaction that publishes the
	// context actor's roles through SessionRolesSetting.
	RowSecurity bool
	// ApplyRowSecurity installs the policies from RowSecurityDDL on startup.
	ApplyRowSecurity bool
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists rows in Postgres tables.
type Store struct {
	pool        *pgxpool.Pool
	rowSecurity bool
}

// NewStore connects using dsn (falls back to a localhost default) and applies
// the entity-model DDL.
func NewStore(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	stmts := sqlbundle.SplitStatements(sqlbundle.Postgres())
	if opts.ApplyRowSecurity {
		stmts = append(stmts, RowSecurityDDL()...)
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{pool: pool, rowSecurity: opts.RowSecurity}, nil
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases pooled connections.
func (s *Store) Close() { s.pool.Close() }

// Insert adds one row and returns it as stored.
func (s *Store) Insert(ctx context.Context, table string, payload domain.Row) (domain.Row, error) {
	stmt, err := sqlquery.Insert(sqlquery.Dollar, table, payload)
	if err != nil {
		return nil, invalidStatement(table, err)
	}
	var rows []domain.Row
	err = s.run(ctx, func(q querier) error {
		var qerr error
		rows, qerr = queryRows(ctx, q, table, stmt)
		return qerr
	})
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
	stmt, err := sqlquery.Update(sqlquery.Dollar, table, values, filters)
	if err != nil {
		return nil, invalidStatement(table, err)
	}
	var rows []domain.Row
	err = s.run(ctx, func(q querier) error {
		var qerr error
		rows, qerr = queryRows(ctx, q, table, stmt)
		return qerr
	})
	return rows, err
}

// Delete removes matching rows and returns how many were removed.
func (s *Store) Delete(ctx context.Context, table string, filters ...domain.Filter) (int, error) {
	stmt, err := sqlquery.Delete(sqlquery.Dollar, table, filters)
	if err != nil {
		return 0, invalidStatement(table, err)
	}
	var n int64
	err = s.run(ctx, func(q querier) error {
		tag, xerr := q.Exec(ctx, stmt.SQL, stmt.Args...)
		if xerr != nil {
			return translateError(table, xerr)
		}
		n = tag.RowsAffected()
		return nil
	})
	return int(n), err
}

// Select returns matching rows ordered by creation time.
func (s *Store) Select(ctx context.Context, table string, filters ...domain.Filter) ([]domain.Row, error) {
	stmt, err := sqlquery.Select(sqlquery.Dollar, table, filters, "")
	if err != nil {
		return nil, invalidStatement(table, err)
	}
	var rows []domain.Row
	err = s.run(ctx, func(q querier) error {
		var qerr error
		rows, qerr = queryRows(ctx, q, table, stmt)
		return qerr
	})
	return rows, err
}

func (s *Store) run(ctx context.Context, fn func(querier) error) error {
	if !s.rowSecurity {
		return fn(s.pool)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translateError("", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", SessionRolesSetting, SessionRoles(ctx)); err != nil {
		return translateError("", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translateError("", err)
	}
	return nil
}

// SessionRoles renders the context actor's roles as the comma separated value
// published to the row level security policies.
func SessionRoles(ctx context.Context) string {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return strings.Join(actor.Roles.Strings(), ",")
}

func queryRows(ctx context.Context, q querier, table string, stmt sqlquery.Statement) ([]domain.Row, error) {
	rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, translateError(table, err)
	}
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []domain.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, translateError(table, err)
		}
		row := make(domain.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(table, err)
	}
	return out, nil
}

var undefinedColumn = regexp.MustCompile(`column "([^"]+)"`)

// translateError maps Postgres errors onto the hosted backend's vocabulary.
// Messages are kept verbatim except for undefined columns, which become the
// canonical schema cache miss.
func translateError(table string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &domain.BackendError{Code: domain.CodeBackend, Message: err.Error(), Table: table, Cause: err}
	}
	if pgErr.TableName != "" {
		table = pgErr.TableName
	}
	switch pgErr.Code {
	case "42703":
		column := pgErr.ColumnName
		if column == "" {
			if m := undefinedColumn.FindStringSubmatch(pgErr.Message); m != nil {
				column = m[1]
			}
		}
		if column != "" {
			missing := domain.NewMissingColumnError(table, column)
			missing.Cause = err
			return missing
		}
	case domain.CodeRowSecurity:
		rls := domain.NewRowSecurityError(table)
		rls.Cause = err
		return rls
	case domain.CodeUndefinedRel:
		unknown := domain.NewUnknownTableError(table)
		unknown.Cause = err
		return unknown
	}
	return &domain.BackendError{Code: pgErr.Code, Message: pgErr.Message, Table: table, Cause: err}
}

func invalidStatement(table string, err error) error {
	return &domain.BackendError{Code: "42602", Message: err.Error(), Table: table, Cause: err}
}
