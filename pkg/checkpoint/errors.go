package checkpoint

import "errors"

// Common errors returned by checkpoint stores.
var (
	// ErrNotFound is returned when no checkpoint exists for a key.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrEmptyKey is returned when a key is empty.
	ErrEmptyKey = errors.New("checkpoint key is empty")

	// ErrInvalidCheckpoint is returned when saving a nil checkpoint.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")

	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("checkpoint store is closed")
)
