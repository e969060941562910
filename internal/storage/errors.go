package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a file operation is attempted before a
	// current directory has been selected.
	ErrNotReady = errors.New("current directory not set")

	// ErrInvalidName is returned when a file or directory name is not a
	// single path segment.
	ErrInvalidName = errors.New("invalid name")

	// ErrNotFound is returned when a file or directory does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a file or directory already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrBackendFailure wraps I/O and network failures from a Backend.
	ErrBackendFailure = errors.New("backend failure")
)

// Error records a failed Session operation with the file name and backend
// location involved.
type Error struct {
	Op       string // operation, e.g. "upload"
	Name     string // file or directory name
	Location string // backend location, plus directory when known
	Kind     error  // one of the Err* sentinels
	Err      error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %q at %s: %v", e.Op, e.Name, e.Location, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the error's kind, so callers can test
// errors.Is(err, storage.ErrNotFound).
func (e *Error) Is(target error) bool { return e.Kind == target }

// KindOf returns the Err* sentinel carried by err, or nil.
func KindOf(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return nil
}
