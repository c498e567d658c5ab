package engine

import "errors"

var (
	// ErrInvalidInput rejects malformed arguments before any write happens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition rejects a state change the lifecycle does not
	// allow, such as claiming a job that is not pending.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict rejects an operation that is well-formed but not allowed
	// given the current state of related entities.
	ErrConflict = errors.New("conflict")
)
