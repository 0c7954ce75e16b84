package client

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when the submitted URL is empty after trimming.
// No request is issued in that case.
var ErrEmptyInput = errors.New("no URL provided")

// RejectedError means a session could not be started. Initiation folds every
// failure mode (bad status, embedded error payload, transport fault) into
// this one kind; Message is taken from the structured error when present.
type RejectedError struct {
	Message string
	Err     error // underlying cause, may be nil
}

func (e *RejectedError) Error() string { return e.Message }

func (e *RejectedError) Unwrap() error { return e.Err }

// PollError means the backend reported a failure for an active session,
// either through the error flag in a progress payload or a bad status code.
type PollError struct {
	Message string
}

func (e *PollError) Error() string { return e.Message }

// TransportError wraps a network or decode failure during polling or the
// stream handoff.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }
