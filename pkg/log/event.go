package log

import (
	"time"
)

// MaxFrameCapture is the largest frame payload stored in an event; longer
// payloads are truncated and flagged.
const MaxFrameCapture = 64

// Event is one captured occurrence at any component.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Component that produced the event.
	Component Component `cbor:"2,keyasint"`

	// Transport identifies which transport, for transport events.
	Transport TransportKind `cbor:"3,keyasint,omitempty"`

	// SessionID is the UUID of the open transport session, if any.
	SessionID string `cbor:"4,keyasint,omitempty"`

	// Direction of frame flow, for frame events.
	Direction Direction `cbor:"5,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"6,keyasint"`

	// Remote is the peer identity (host:port, or the serial device path).
	Remote string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (exactly one is set).
	Frame       *FrameEvent       `cbor:"8,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"10,keyasint,omitempty"`
	Status      *StatusEvent      `cbor:"11,keyasint,omitempty"`
}

// Component identifies which part of the system produced an event.
type Component uint8

const (
	// ComponentTransport is a transport handler (serial or network).
	ComponentTransport Component = 0
	// ComponentRegistry is the device registry.
	ComponentRegistry Component = 1
	// ComponentSupervisor is the supervisor loop.
	ComponentSupervisor Component = 2
)

// String returns the component name.
func (c Component) String() string {
	switch c {
	case ComponentTransport:
		return "TRANSPORT"
	case ComponentRegistry:
		return "REGISTRY"
	case ComponentSupervisor:
		return "SUPERVISOR"
	default:
		return "UNKNOWN"
	}
}

// TransportKind identifies a transport in capture events.
type TransportKind uint8

const (
	// TransportNone marks events not tied to a transport.
	TransportNone TransportKind = 0
	// TransportSerial is the RS-485/RS-232 serial line.
	TransportSerial TransportKind = 1
	// TransportTCP is the TCP network connection.
	TransportTCP TransportKind = 2
)

// String returns the transport name.
func (k TransportKind) String() string {
	switch k {
	case TransportNone:
		return "NONE"
	case TransportSerial:
		return "SERIAL"
	case TransportTCP:
		return "TCP"
	default:
		return "UNKNOWN"
	}
}

// Direction indicates frame flow relative to this process.
type Direction uint8

const (
	// DirectionIn indicates bytes received from the peer.
	DirectionIn Direction = 0
	// DirectionOut indicates bytes sent to the peer.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates bytes carried over a transport.
	CategoryFrame Category = 0
	// CategoryState indicates a session or supervisor state change.
	CategoryState Category = 1
	// CategoryError indicates a recoverable error.
	CategoryError Category = 2
	// CategoryStatus indicates a periodic supervisor status report.
	CategoryStatus Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryStatus:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw bytes carried over a transport.
type FrameEvent struct {
	// Size is the full frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the frame payload, truncated to MaxFrameCapture bytes.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Data holds less than Size bytes.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures a lifecycle transition.
type StateChangeEvent struct {
	From string `cbor:"1,keyasint"`
	To   string `cbor:"2,keyasint"`
}

// ErrorEvent captures a recoverable error with its operation.
type ErrorEvent struct {
	// Op names the operation that failed (open, send, receive, process).
	Op string `cbor:"1,keyasint"`

	// Message is the error text.
	Message string `cbor:"2,keyasint"`
}

// StatusEvent captures a periodic supervisor status report.
type StatusEvent struct {
	// Tick is the supervisor loop iteration count.
	Tick uint64 `cbor:"1,keyasint"`

	// Devices is the registry size.
	Devices int `cbor:"2,keyasint"`

	// SerialUp reports serial transport availability.
	SerialUp bool `cbor:"3,keyasint"`

	// TCPUp reports network transport availability.
	TCPUp bool `cbor:"4,keyasint"`
}

// NewFrameEvent builds a frame event, truncating the stored payload to
// MaxFrameCapture bytes.
func NewFrameEvent(kind TransportKind, sessionID, remote string, dir Direction, data []byte) Event {
	frame := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameCapture {
		frame.Data = append([]byte(nil), data[:MaxFrameCapture]...)
		frame.Truncated = true
	} else {
		frame.Data = append([]byte(nil), data...)
	}
	return Event{
		Timestamp: time.Now(),
		Component: ComponentTransport,
		Transport: kind,
		SessionID: sessionID,
		Direction: dir,
		Category:  CategoryFrame,
		Remote:    remote,
		Frame:     frame,
	}
}

// NewStateEvent builds a transport session state-change event.
func NewStateEvent(kind TransportKind, sessionID, remote, from, to string) Event {
	return Event{
		Timestamp:   time.Now(),
		Component:   ComponentTransport,
		Transport:   kind,
		SessionID:   sessionID,
		Category:    CategoryState,
		Remote:      remote,
		StateChange: &StateChangeEvent{From: from, To: to},
	}
}

// NewErrorEvent builds an error event for any component.
func NewErrorEvent(component Component, kind TransportKind, sessionID, op string, err error) Event {
	return Event{
		Timestamp: time.Now(),
		Component: component,
		Transport: kind,
		SessionID: sessionID,
		Category:  CategoryError,
		Error:     &ErrorEvent{Op: op, Message: err.Error()},
	}
}

// NewStatusEvent builds a supervisor status report event.
func NewStatusEvent(tick uint64, devices int, serialUp, tcpUp bool) Event {
	return Event{
		Timestamp: time.Now(),
		Component: ComponentSupervisor,
		Category:  CategoryStatus,
		Status: &StatusEvent{
			Tick:     tick,
			Devices:  devices,
			SerialUp: serialUp,
			TCPUp:    tcpUp,
		},
	}
}
