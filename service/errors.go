package service

import (
	"errors"
)

// ErrNotFound is returned when an id does not resolve to an RFP
var ErrNotFound = errors.New("rfp not found")

// ValidationError reports client input that was rejected. Reason is
// safe to show to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// StorageError wraps a persistence or blob I/O failure
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
