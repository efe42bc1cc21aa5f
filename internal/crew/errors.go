package crew

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a run is requested while a previous run is still draining.
	ErrBusy = errors.New("crew is busy with another run")

	// ErrCapacityExceeded is returned when a crew is created with more workers than its capacity.
	ErrCapacityExceeded = errors.New("crew size exceeds capacity")

	// ErrInvalidSize is returned when a crew is created with fewer than one worker.
	ErrInvalidSize = errors.New("crew size must be at least 1")

	// ErrInvalidArgument is returned for an empty root, an empty term or an over-long root.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("crew is closed")
)

// CapacityError reports a crew size above the pool's fixed capacity.
type CapacityError struct {
	Requested int // Number of workers asked for
	Capacity  int // Maximum number of workers allowed
}

// Error implements the error interface for CapacityError.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: requested %d workers, capacity is %d", ErrCapacityExceeded, e.Requested, e.Capacity)
}

// Unwrap lets errors.Is match ErrCapacityExceeded.
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// IsUsageError reports whether err is one of the caller-facing usage failures.
// Usage errors never leave partial state behind.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrInvalidSize) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrClosed)
}
