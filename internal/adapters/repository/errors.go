package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("store closed")
	ErrCorrupt  = errors.New("stored value does not decode")
)
