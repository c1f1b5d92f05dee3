package localdb

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable is returned when the persistence backend cannot be
// reached in the current environment. The condition is detected on the
// triggering request; later requests may retry and will fail the same way
// until the environment changes.
var ErrStorageUnavailable = errors.New("storage backend unavailable")

// ParseError is returned when an incoming message cannot be decoded into a
// request. It is recoverable: the worker answers with Err and keeps running.
type ParseError struct {
	Cause error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("Failed to parse request: %v", e.Cause)
}

func (e ParseError) Unwrap() error { return e.Cause }

// UnknownRequestError is returned when a message decodes cleanly but carries
// a request kind the worker does not recognise. No side effects occur.
type UnknownRequestError struct {
	Kind string
}

func (e UnknownRequestError) Error() string {
	return fmt.Sprintf("Unknown request type: %s", e.Kind)
}

// StatementError is returned when a single statement fails. For a batch it
// identifies the failing statement by position; the whole batch has already
// been rolled back by the time the caller sees it.
type StatementError struct {
	Index int
	SQL   string
	Cause error
}

func (e StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %v", e.Index, e.Cause)
}

func (e StatementError) Unwrap() error { return e.Cause }
