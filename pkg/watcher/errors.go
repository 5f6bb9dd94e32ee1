package watcher

import (
	"errors"
	"fmt"
)

// Common errors returned by the watcher.
var (
	// ErrConfig is returned for invalid options or roots. It is always
	// reported before any native resource is allocated.
	ErrConfig = errors.New("invalid watch configuration")

	// ErrStreamCreate is returned when the native stream cannot be created.
	ErrStreamCreate = errors.New("failed to create event stream")

	// ErrStreamStart is returned when the stream cannot be bound to its
	// queue or started. The stream stays in the created state.
	ErrStreamStart = errors.New("failed to start event stream")

	// ErrPathDecode is the terminal error delivered when the native layer
	// hands over a path that is not valid text.
	ErrPathDecode = errors.New("failed to decode native path")

	// ErrUseAfterShutdown is returned by every stream method other than
	// Shutdown once the stream has been shut down.
	ErrUseAfterShutdown = errors.New("event stream used after shutdown")

	// ErrNotCreated is returned when using a stream that was not obtained
	// from this package.
	ErrNotCreated = errors.New("event stream not created")

	// ErrAlreadyStarted is returned when Start is called on a stream that
	// has already been started.
	ErrAlreadyStarted = errors.New("event stream already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("event stream not started")

	// ErrSourceClosed is returned by a sequence once it is drained after
	// the watch was closed.
	ErrSourceClosed = errors.New("event source closed")
)

// PathDecodeError describes a record whose path could not be decoded.
type PathDecodeError struct {
	// Index is the position of the record within its native batch.
	Index int

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *PathDecodeError) Error() string {
	return fmt.Sprintf("%v: record %d: %v", ErrPathDecode, e.Index, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PathDecodeError) Unwrap() error {
	return e.Err
}

// Is reports ErrPathDecode as a match so callers can use errors.Is.
func (e *PathDecodeError) Is(target error) bool {
	return target == ErrPathDecode
}
