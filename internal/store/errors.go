package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record matches, including when a
	// mutation targets a record that is already soft-deleted.
	ErrNotFound = errors.New("record not found")

	// ErrNotDeleted is returned by Restore for a record that is not deleted.
	ErrNotDeleted = errors.New("record is not deleted")

	// ErrUnknownTable is returned for a table name the schema does not declare.
	ErrUnknownTable = errors.New("unknown table")

	// ErrConflict is returned when a record changed between read and write.
	ErrConflict = errors.New("record was modified by another request")
)

// FilterError describes an unusable filter condition.
type FilterError struct {
	Field string
	Op    Operator
	Msg   string
}

func (e *FilterError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("invalid filter on %q (%s): %s", e.Field, e.Op, e.Msg)
	}
	return fmt.Sprintf("invalid filter on %q: %s", e.Field, e.Msg)
}
