package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup by identifier matches no row.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrConflict reports a uniqueness violation.
type ErrConflict struct {
	Entity EntityType
	Field  string
	Value  string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// ErrInvalid reports a malformed input value.
type ErrInvalid struct {
	Field  string
	Reason string
}

func (e ErrInvalid) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrStore is matched by every backend failure (connection, query, commit).
var ErrStore = errors.New("store failure")

// StoreError wraps a backend failure with the operation that produced it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// IsConflict reports whether err wraps an ErrConflict.
func IsConflict(err error) bool {
	var c ErrConflict
	return errors.As(err, &c)
}
