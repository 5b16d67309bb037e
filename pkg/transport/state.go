package transport

// Session states.
type State int

const (
	// StateClosed indicates no session.
	StateClosed State = iota

	// StateOpening indicates resource acquisition in progress.
	StateOpening

	// StateOpen indicates an active session.
	StateOpen

	// StateClosing indicates release in progress.
	StateClosing
)

// String returns the session state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}
