package queue

import "errors"

// Sentinel errors returned by Enqueue.
var (
	ErrStopped = errors.New("trigger queue stopped")
	ErrFull    = errors.New("trigger queue full")
)
