package storage

import "errors"

// Storage error constants
var (
	// ErrUnknownBackend is returned when the configured backend has no implementation
	ErrUnknownBackend = errors.New("unknown session store backend")

	// ErrStoreClosed is returned by operations on a closed store
	ErrStoreClosed = errors.New("session store is closed")

	// ErrInvalidKey is returned when a session ID, access key or token name is empty
	ErrInvalidKey = errors.New("session ID, access key and token name are required")
)
