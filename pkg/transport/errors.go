package transport

import "errors"

// Handler errors.
var (
	// ErrNotOpen indicates an operation that requires an open session.
	ErrNotOpen = errors.New("transport not open")

	// ErrAlreadyOpen indicates Open was called on a live session.
	ErrAlreadyOpen = errors.New("transport already open")

	// ErrOpenFailed indicates the underlying resource could not be acquired.
	ErrOpenFailed = errors.New("transport open failed")

	// ErrWriteFailed indicates a send did not complete.
	ErrWriteFailed = errors.New("transport write failed")

	// ErrReadFailed indicates a receive failed for a reason other than
	// timeout or peer close.
	ErrReadFailed = errors.New("transport read failed")

	// ErrTimeout indicates no data moved within the configured timeout.
	ErrTimeout = errors.New("transport timeout")

	// ErrPeerClosed indicates the remote end closed the connection.
	ErrPeerClosed = errors.New("peer closed connection")
)
