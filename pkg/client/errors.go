package client

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a client that is not in
	// its initial state.
	ErrAlreadyStarted = errors.New("client: already started")

	// ErrNotStarted is returned by Stop and Join on a client that was
	// never started (or has already been stopped).
	ErrNotStarted = errors.New("client: not started")

	// ErrNoDialer is reported for every connection slot of a client that
	// was built without a Dialer.
	ErrNoDialer = errors.New("client: no dialer configured")
)
