package core

import "errors"

// Failure taxonomy. Callers match with errors.Is; messages wrap these
// sentinels together with the offending identifier.
var (
	// ErrNotFound: the referenced session or room does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: the operation conflicts with the current state,
	// e.g. starting a recording that is already running.
	ErrInvalidState = errors.New("invalid state")
	// ErrTimeout: an external job exceeded its wait bound.
	ErrTimeout = errors.New("timed out")
)
