package queue

import "errors"

var (
	// ErrNotFound: the event id does not exist.
	ErrNotFound = errors.New("event not found")

	// ErrInvalidReference: enqueue referenced a source that does not exist.
	// Rejected at the boundary, never retried.
	ErrInvalidReference = errors.New("source does not exist")

	// ErrInvalidState: a resolution targeted an event that is not
	// processing. Signals a duplicate resolve or an upstream bug; the
	// stored event is left untouched.
	ErrInvalidState = errors.New("event is not in processing state")
)
