package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrObjectExists indicates an object already exists under the requested key
	ErrObjectExists = errors.New("object already exists")

	// ErrCircuitOpen indicates the storage backend is short-circuited after repeated failures
	ErrCircuitOpen = errors.New("circuit open")
)

// Wrap wraps an error with a message
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsObjectExists reports whether an upload collided with an existing key
func IsObjectExists(err error) bool {
	return errors.Is(err, ErrObjectExists)
}

// IsCircuitOpen reports whether a call was rejected without reaching the backend
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
