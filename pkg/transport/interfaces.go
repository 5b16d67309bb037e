package transport

import "context"

// Kind identifies the physical link a handler drives.
type Kind int

const (
	// KindSerial is a Modbus RTU serial link.
	KindSerial Kind = iota

	// KindTCP is a Modbus TCP link.
	KindTCP
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// Handler is the contract shared by all transport handlers.
// Implemented by SerialHandler and NetworkHandler.
type Handler interface {
	// Open acquires the underlying resource and starts a session.
	// Returns ErrAlreadyOpen on a live session, ErrOpenFailed when the
	// resource cannot be acquired. A failed open retains nothing.
	Open(ctx context.Context) error

	// Close releases the resource unconditionally. Idempotent, callable
	// from any goroutine, and unblocks in-flight receives.
	Close() error

	// IsOpen reports whether a session is active. Never blocks.
	IsOpen() bool

	// Send writes the complete buffer within the configured timeout and
	// returns the byte count. Partial delivery is an error.
	Send(p []byte) (int, error)

	// Receive returns at least one byte, at most max, within the
	// configured timeout. Zero bytes at the deadline is ErrTimeout.
	Receive(max int) ([]byte, error)

	// Process performs one bounded housekeeping pass. No blocking I/O.
	Process() error

	// Kind returns the link kind.
	Kind() Kind

	// State returns the current session state.
	State() State

	// SessionID returns the UUID of the current session, or "" when
	// closed.
	SessionID() string
}

// Compile-time interface satisfaction checks.
var (
	_ Handler = (*SerialHandler)(nil)
	_ Handler = (*NetworkHandler)(nil)
)
