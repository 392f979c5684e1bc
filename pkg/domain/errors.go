package domain

import (
	"fmt"
	"strings"
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrConflict is returned when a uniqueness constraint would be violated,
// such as adding an entry name that already exists on the panel.
type ErrConflict struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("%s %s conflict: %s", e.Entity, e.ID, e.Reason)
}

// ErrValidation is returned when a single-record precondition fails before
// any state is written.
type ErrValidation struct {
	Field   string
	Message string
}

func (e ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrAlreadyDeployed is returned when a release deployment has already
// completed or is still inside its retry window.
type ErrAlreadyDeployed struct {
	ReleaseID string
}

func (e ErrAlreadyDeployed) Error() string {
	return fmt.Sprintf("release %s already deployed", e.ReleaseID)
}

// InvalidRow is one diagnostic produced by a batch importer.
type InvalidRow struct {
	Line    int
	Column  string
	Message string
}

func (r InvalidRow) String() string {
	if r.Column == "" {
		return fmt.Sprintf("line %d: %s", r.Line, r.Message)
	}
	return fmt.Sprintf("line %d, column %s: %s", r.Line, r.Column, r.Message)
}

// ImportValidationError collects every invalid row of an uploaded batch.
// Importers validate the whole file before writing anything, so the presence
// of this error guarantees no partial import happened.
type ImportValidationError struct {
	Rows []InvalidRow
}

func (e ImportValidationError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf("import rejected: %s", strings.Join(parts, "; "))
}
