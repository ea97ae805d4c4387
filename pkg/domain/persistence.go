package domain

import (
	"context"
	"fmt"
)

// Row is a single backend record or write payload keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of the row. A nil row clones to an empty row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns the column names present in the row, unordered.
func (r Row) Columns() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}

// String returns the value under column as a string when it holds one.
func (r Row) String(column string) (string, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case State:
		return string(val), true
	case []byte:
		return string(val), true
	default:
		return fmt.Sprint(val), true
	}
}

// FilterOp enumerates supported predicate operators.
type FilterOp string

// Filter operators understood by every backend.
const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpIn  FilterOp = "in"
)

// Filter is a single column predicate. Multiple filters are combined with AND.
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Eq matches rows where column equals value.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Neq matches rows where column differs from value.
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }

// In matches rows where column equals any of values.
func In(column string, values ...any) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// Backend is the row-oriented data collaborator the core writes through.
// Implementations report failures with *BackendError so callers can surface
// the backend's own message verbatim.
type Backend interface {
	Insert(ctx context.Context, table string, payload Row) (Row, error)
	Update(ctx context.Context, table string, values Row, filters ...Filter) ([]Row, error)
	Delete(ctx context.Context, table string, filters ...Filter) (int, error)
	Select(ctx context.Context, table string, filters ...Filter) ([]Row, error)
}
