package graph

import "errors"

// ErrThreadSuspended is returned by Run when the thread is parked at an
// interrupt node. The caller must Resume (or abandon the thread) first.
var ErrThreadSuspended = errors.New("thread is suspended awaiting a decision")

// ErrNotSuspended is returned by Resume when the thread has no pending
// interrupt to resume from.
var ErrNotSuspended = errors.New("thread is not suspended")

// ErrMaxStepsExceeded indicates that a run reached the maximum allowed step
// count without reaching End or an interrupt.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap exposes the underlying cause so callers can match store sentinels.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
