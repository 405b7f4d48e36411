package reactor

import "errors"

var (
	// ErrBackpressure reports a TryPost that found the mailbox full.
	ErrBackpressure = errors.New("reactor: backpressure")

	// ErrStopped reports a post against a loop that has already been
	// told to stop; the task was not accepted and will never run.
	ErrStopped = errors.New("reactor: stopped")
)
