// Package memory provides an in-process row backend with declared column sets.
// It reproduces the hosted backend's error messages, including the schema
// cache miss for unknown columns, and lets tests add or drop columns at
// runtime to simulate schema drift.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mg15best/impulsa-lov-sub001/internal/entitymodel"
	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Backend = (*Store)(nil)

type table struct {
	name     string
	columns  map[string]struct{}
	required map[string]struct{}
	rows     []domain.Row
}

// Store is a goroutine-safe in-memory domain.Backend.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	calls  map[string]int
}

// NewStore creates a backend for tables. With no arguments every table from
// entitymodel.Tables is declared.
func NewStore(tables ...entitymodel.Table) *Store {
	if len(tables) == 0 {
		tables = entitymodel.Tables()
	}
	s := &Store{tables: make(map[string]*table, len(tables)), calls: make(map[string]int)}
	for _, t := range tables {
		tb := &table{
			name:     t.Name,
			columns:  make(map[string]struct{}, len(t.Columns)),
			required: make(map[string]struct{}),
		}
		for _, c := range t.Columns {
			tb.columns[c.Name] = struct{}{}
			if c.Required {
				tb.required[c.Name] = struct{}{}
			}
		}
		s.tables[t.Name] = tb
	}
	return s
}

// DropColumn removes column from tableName, discarding stored values.
func (s *Store) DropColumn(tableName, column string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tb, ok := s.tables[tableName]
	if !ok {
		return
	}
	delete(tb.columns, column)
	delete(tb.required, column)
	for _, row := range tb.rows {
		delete(row, column)
	}
}

// AddColumn declares an optional column on tableName.
func (s *Store) AddColumn(tableName, column string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tb, ok := s.tables[tableName]; ok {
		tb.columns[column] = struct{}{}
	}
}

// Calls returns how many times op ("insert", "update", "delete", "select")
// reached the store, failed calls included.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *Store) lookup(name string) (*table, error) {
	tb, ok := s.tables[name]
	if !ok {
		return nil, domain.NewUnknownTableError(name)
	}
	return tb, nil
}

// unknownColumn returns the first payload column, in sorted order, that the
// table does not declare.
func (tb *table) unknownColumn(payload domain.Row) (string, bool) {
	cols := payload.Columns()
	sort.Strings(cols)
	for _, c := range cols {
		if _, ok := tb.columns[c]; !ok {
			return c, true
		}
	}
	return "", false
}

func (tb *table) checkFilters(filters []domain.Filter) error {
	for _, f := range filters {
		if _, ok := tb.columns[f.Column]; !ok {
			return &domain.BackendError{
				Code:    "42703",
				Message: fmt.Sprintf("column %s.%s does not exist", tb.name, f.Column),
				Table:   tb.name,
			}
		}
	}
	return nil
}

// Insert stores payload as a new row.
func (s *Store) Insert(_ context.Context, tableName string, payload domain.Row) (domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["insert"]++
	tb, err := s.lookup(tableName)
	if err != nil {
		return nil, err
	}
	if col, ok := tb.unknownColumn(payload); ok {
		return nil, domain.NewMissingColumnError(tableName, col)
	}
	for col := range tb.required {
		if v, ok := payload[col]; !ok || v == nil {
			return nil, &domain.BackendError{
				Code:    "23502",
				Message: fmt.Sprintf("null value in column \"%s\" of relation \"%s\" violates not-null constraint", col, tableName),
				Table:   tableName,
			}
		}
	}
	if id, ok := payload.String(domain.IDColumn); ok {
		for _, row := range tb.rows {
			if existing, _ := row.String(domain.IDColumn); existing == id {
				return nil, &domain.BackendError{
					Code:    "23505",
					Message: fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", tableName),
					Table:   tableName,
				}
			}
		}
	}
	row := payload.Clone()
	tb.rows = append(tb.rows, row)
	return row.Clone(), nil
}

// Update merges values into every row matching filters.
func (s *Store) Update(_ context.Context, tableName string, values domain.Row, filters ...domain.Filter) ([]domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["update"]++
	tb, err := s.lookup(tableName)
	if err != nil {
		return nil, err
	}
	if col, ok := tb.unknownColumn(values); ok {
		return nil, domain.NewMissingColumnError(tableName, col)
	}
	if err := tb.checkFilters(filters); err != nil {
		return nil, err
	}
	var out []domain.Row
	for _, row := range tb.rows {
		if !matches(row, filters) {
			continue
		}
		for k, v := range values {
			row[k] = v
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

// Delete removes every row matching filters.
func (s *Store) Delete(_ context.Context, tableName string, filters ...domain.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["delete"]++
	tb, err := s.lookup(tableName)
	if err != nil {
		return 0, err
	}
	if err := tb.checkFilters(filters); err != nil {
		return 0, err
	}
	kept := tb.rows[:0]
	removed := 0
	for _, row := range tb.rows {
		if matches(row, filters) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	tb.rows = kept
	return removed, nil
}

// Select returns copies of every row matching filters in insertion order.
func (s *Store) Select(_ context.Context, tableName string, filters ...domain.Filter) ([]domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["select"]++
	tb, err := s.lookup(tableName)
	if err != nil {
		return nil, err
	}
	if err := tb.checkFilters(filters); err != nil {
		return nil, err
	}
	var out []domain.Row
	for _, row := range tb.rows {
		if matches(row, filters) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func matches(row domain.Row, filters []domain.Filter) bool {
	for _, f := range filters {
		v, ok := row[f.Column]
		switch f.Op {
		case domain.OpEq:
			if !ok || !equal(v, f.Value) {
				return false
			}
		case domain.OpNeq:
			if ok && equal(v, f.Value) {
				return false
			}
		case domain.OpIn:
			values, _ := f.Value.([]any)
			found := false
			for _, candidate := range values {
				if ok && equal(v, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// equal compares by formatted value so typed strings such as domain.State
// match plain strings.
func equal(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
