package lock

import "errors"

var (
	// ErrTimeout indicates the lease could not be acquired within the acquisition window.
	ErrTimeout = errors.New("lock: acquisition timed out")

	// ErrInvalidKey indicates an empty key or owner.
	ErrInvalidKey = errors.New("lock: key and owner must not be empty")

	// ErrBackend wraps failures of the underlying lease store.
	ErrBackend = errors.New("lock: backend failure")
)
