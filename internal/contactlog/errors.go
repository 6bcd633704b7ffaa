package contactlog

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks an entry rejected by the write guard.
	ErrValidation = errors.New("invalid contact log entry")

	// ErrStoreIO marks a failure to read or write the backing storage.
	ErrStoreIO = errors.New("contact log storage failure")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("contact log store closed")
)

// ValidationError describes the first field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StoreIOError wraps a backend read or write failure. The operation failed;
// the store itself stays usable.
type StoreIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("contact log %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("contact log %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() []error { return []error{ErrStoreIO, e.Err} }

func ioError(op, path string, err error) error {
	return &StoreIOError{Op: op, Path: path, Err: err}
}
