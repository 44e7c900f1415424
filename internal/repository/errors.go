package repository

import "errors"

var (
	// ErrNotFound is returned when no record exists at a path, or a record
	// lacks the entry asked for.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidPath is returned when an id cannot be used as a path segment.
	ErrInvalidPath = errors.New("invalid record path segment")

	// ErrTooManyConflicts is returned when an atomic update keeps losing to
	// concurrent writers.
	ErrTooManyConflicts = errors.New("atomic update aborted after repeated conflicts")
)
