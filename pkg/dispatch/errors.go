package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Dispatch. Callers classify with errors.Is.
var (
	// ErrRateLimited means the command kind is still inside its cooldown
	// window. The command is dropped, never queued.
	ErrRateLimited = errors.New("command inside cooldown window")

	// ErrInvalidTransition means the command conflicts with the current
	// flight state, e.g. takeoff while already airborne.
	ErrInvalidTransition = errors.New("invalid flight state transition")

	// ErrBusy means a vision query is already outstanding.
	ErrBusy = errors.New("vision query already outstanding")

	// ErrShuttingDown means the session ended; all dispatch is rejected.
	ErrShuttingDown = errors.New("shutting down")
)

// TransportError wraps a vehicle link failure for a specific directive.
type TransportError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether the error is a cooldown drop.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTransport extracts a TransportError if the chain contains one.
func IsTransport(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
