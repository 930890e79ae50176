package app

import "errors"

// Sentinel errors returned by the orchestrator and the capture service.
var (
	ErrBusy          = errors.New("sync already running")
	ErrInvalidRecord = errors.New("invalid record")
	ErrNotFound      = errors.New("not found")
	ErrNoProvider    = errors.New("no schedule provider configured")
	ErrStepPanic     = errors.New("sync step panicked")
	ErrStopped       = errors.New("orchestrator stopped")
)
