package hunt

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an entity id the backing store does not recognize.
// The engine never auto-creates teams, puzzles or runs.
type NotFoundError struct {
	// Entity is the kind of entity: "run", "team" or "puzzle".
	Entity string

	// ID is the unrecognized identifier.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) succeed.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound creates a NotFoundError.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound returns true if err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// InvariantError signals persisted state that can only exist through a
// programming defect, such as two rows for one primary key. It is raised
// with panic and never returned as a routine error.
type InvariantError struct {
	Table   string
	Key     string
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s (key=%s): %s", e.Table, e.Key, e.Message)
}
