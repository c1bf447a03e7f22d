package db

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrPersistence is matched by every PersistenceWarning
	ErrPersistence = errors.New("persistence failed")

	// ErrRecordNotFound is returned when deleting or fetching an unknown id
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidDimensions is returned when vector dimensions don't match the store configuration
	ErrInvalidDimensions = errors.New("invalid vector dimensions")
)

/*
ValidationError reports unusable caller input. It is the only failure
Add and Search return.
*/
type ValidationError struct {
	Op     string
	Reason string
}

func newValidationError(op, reason string) *ValidationError {
	return &ValidationError{Op: op, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

/*
PersistenceWarning reports that a snapshot could not be written or read.
The in-memory store keeps working.
*/
type PersistenceWarning struct {
	Op   string
	Slot string
	Err  error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", w.Op, w.Slot, w.Err)
}

func (w *PersistenceWarning) Unwrap() error { return w.Err }

func (w *PersistenceWarning) Is(target error) bool { return target == ErrPersistence }
