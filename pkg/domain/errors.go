package domain

import (
	"errors"
	"fmt"
)

// Backend error codes. They follow the codes emitted by the hosted REST
// backend so messages and codes can travel unchanged to operators.
const (
	CodeMissingColumn = "PGRST204"
	CodeNoRows        = "PGRST116"
	CodeRowSecurity   = "42501"
	CodeUndefinedRel  = "42P01"
	CodeBackend       = "backend_error"
)

// BackendError reports a failed backend call. Message is the backend's own
// text and is returned verbatim by Error.
type BackendError struct {
	Code    string
	Message string
	Table   string
	Cause   error
}

func (e *BackendError) Error() string { return e.Message }

// Unwrap returns the driver level cause, if any.
func (e *BackendError) Unwrap() error { return e.Cause }

// NewMissingColumnError builds the schema-cache error the backend emits when a
// write names a column the table does not have.
func NewMissingColumnError(table, column string) *BackendError {
	return &BackendError{
		Code:    CodeMissingColumn,
		Message: fmt.Sprintf("Could not find the '%s' column of '%s' in the schema cache", column, table),
		Table:   table,
	}
}

// NewRowSecurityError builds the rejection returned when row level security
// refuses a write.
func NewRowSecurityError(table string) *BackendError {
	return &BackendError{
		Code:    CodeRowSecurity,
		Message: fmt.Sprintf("new row violates row-level security policy for table \"%s\"", table),
		Table:   table,
	}
}

// NewUnknownTableError builds the error returned for tables the backend does not expose.
func NewUnknownTableError(table string) *BackendError {
	return &BackendError{
		Code:    CodeUndefinedRel,
		Message: fmt.Sprintf("relation \"public.%s\" does not exist", table),
		Table:   table,
	}
}

// PermissionError is returned when an actor's roles do not authorize an action.
type PermissionError struct {
	Action  Action
	Entity  EntityType
	Allowed string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s on %s is not allowed for your roles; requires %s", e.Action, e.Entity, e.Allowed)
}

// TransitionError is returned when a lifecycle change is not legal.
type TransitionError struct {
	Entity      EntityType
	From        State
	To          State
	Explanation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s from %s to %s: %s", e.Entity, e.From, e.To, e.Explanation)
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsPermissionDenied reports whether err carries a *PermissionError.
func IsPermissionDenied(err error) bool {
	var target *PermissionError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err carries a *TransitionError.
func IsInvalidTransition(err error) bool {
	var target *TransitionError
	return errors.As(err, &target)
}

// IsNotFound reports whether err carries an ErrNotFound.
func IsNotFound(err error) bool {
	var target ErrNotFound
	return errors.As(err, &target)
}
