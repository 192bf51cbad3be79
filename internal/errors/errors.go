package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the gateway. The transport maps each one to a stable status code.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrUpstreamFailure  = errors.New("upstream failure")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Kind returns the gateway error kind carried by err, or nil when err is not one of them.
func Kind(err error) error {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrUnauthenticated,
		ErrPermissionDenied,
		ErrNotFound,
		ErrAlreadyExists,
		ErrUpstreamFailure,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
