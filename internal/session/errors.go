package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session failures. All of them reach the client wrapped
// in a SessionError, so one broken session never takes down another.
var (
	// ErrUnknown is returned for operations on a sid the manager has never
	// seen or has already closed.
	ErrUnknown = errors.New("unknown session")

	// ErrNotReady is returned when a message is submitted before the session
	// finished initializing.
	ErrNotReady = errors.New("session is not initialized")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("session is closed")

	// ErrInitializing is returned when an Initialize overlaps one already in
	// flight for the same sid. Commands for one sid never run concurrently.
	ErrInitializing = errors.New("initialization already in progress")

	// ErrQueueFull is returned when a session's pending-send queue is at
	// capacity.
	ErrQueueFull = errors.New("session send queue is full")

	// ErrTimeout marks failures caused by a bounded wait elapsing. Check it
	// with errors.Is to distinguish timeouts from agent-side failures.
	ErrTimeout = errors.New("timed out")
)

// SessionError ties a failure to the session it happened in.
type SessionError struct {
	SID string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
