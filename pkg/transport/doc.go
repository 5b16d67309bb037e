// Package transport provides the Modbus link handlers used by the
// supervisor.
//
// Two handlers share one contract:
//   - SerialHandler drives an RTU link over a serial port (fixed 8N1)
//   - NetworkHandler drives a Modbus TCP link over a plain socket
//
// Both implement Handler:
//
//	┌────────────────────────────────┐
//	│      Supervisor / console      │
//	├────────────────────────────────┤
//	│     Handler (Open/Send/...)    │
//	├────────────────┬───────────────┤
//	│  SerialHandler │ NetworkHandler│
//	├────────────────┼───────────────┤
//	│  serial port   │    TCP        │
//	└────────────────┴───────────────┘
//
// # Session Lifecycle
//
// A handler moves through CLOSED → OPENING → OPEN → CLOSING → CLOSED.
// Open on an already-open handler is rejected with ErrAlreadyOpen rather
// than reusing or replacing the live session. Each successful Open starts
// a fresh session identified by a UUID; the ID is cleared again on close.
//
// Close releases the underlying resource unconditionally and is safe to
// call from any goroutine, including while another goroutine is blocked
// in Receive. A close during an in-flight read unblocks that read.
//
// # Timeouts
//
// Send and Receive are bounded by the configured timeout. Send either
// writes the complete buffer or fails; Receive returns at least one byte,
// up to the caller's limit. A read that yields nothing within the timeout
// reports ErrTimeout, never an empty success. On TCP, a peer-initiated
// close surfaces as ErrPeerClosed, distinct from a timeout.
package transport
