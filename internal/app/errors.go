package app

import "errors"

var (
	// ErrAlreadyRunning is returned when Start is called on a running Runner.
	ErrAlreadyRunning = errors.New("bulkship: already running")

	// ErrNotRunning is returned when Stop is called on a stopped Runner.
	ErrNotRunning = errors.New("bulkship: not running")

	// ErrShutdownTimeout is returned when in-flight work outlives the drain timeout.
	ErrShutdownTimeout = errors.New("bulkship: shutdown timeout")
)
