package supervisor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/modlink-project/modlink-go/pkg/backoff"
	"github.com/modlink-project/modlink-go/pkg/device"
	"github.com/modlink-project/modlink-go/pkg/log"
	"github.com/modlink-project/modlink-go/pkg/transport"
)

// Supervisor errors.
var (
	ErrAlreadyStarted = errors.New("supervisor already started")
	ErrStopped        = errors.New("supervisor stopped")
	ErrNoTransport    = errors.New("no transport available")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// State represents the supervisor state.
type State uint8

const (
	// StateUninitialized - supervisor created but not started.
	StateUninitialized State = iota

	// StateInitializing - transports are being opened.
	StateInitializing

	// StateRunning - control loop is active.
	StateRunning

	// StateShuttingDown - shutdown in progress.
	StateShuttingDown

	// StateStopped - supervisor has stopped. Terminal.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Supervisor.
type Config struct {
	// TickInterval is the control loop period (default: 100ms).
	TickInterval time.Duration

	// MaxTicks stops the supervisor after this many ticks (0 = unbounded).
	MaxTicks uint64

	// MaxDuration stops the supervisor after this run time (0 = unbounded).
	MaxDuration time.Duration

	// StatusEvery emits a status report every N ticks (default: 10;
	// 0 = disabled).
	StatusEvery uint64

	// RequireTransport aborts startup when neither transport opens.
	// Without it the supervisor runs degraded, retrying in background.
	RequireTransport bool

	// RegistryCapacity bounds the device registry (default:
	// device.DefaultCapacity).
	RegistryCapacity int

	// Reopen configures the backoff schedule for reopening a transport
	// that has gone down.
	Reopen backoff.Config

	// DisableReopen turns off automatic reopen attempts.
	DisableReopen bool

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// Capture receives structured capture events (nil = disabled).
	Capture log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:     100 * time.Millisecond,
		StatusEvery:      10,
		RegistryCapacity: device.DefaultCapacity,
		Reopen:           backoff.DefaultConfig(),
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.TickInterval < 0 {
		return ErrInvalidConfig
	}
	if c.RegistryCapacity < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// withDefaults fills zero fields with defaults.
func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.RegistryCapacity == 0 {
		c.RegistryCapacity = device.DefaultCapacity
	}
	return c
}

// TransportStatus describes one transport slot.
type TransportStatus struct {
	// Kind is the link kind.
	Kind transport.Kind

	// Available reports whether the supervisor considers the transport
	// usable.
	Available bool

	// State is the handler session state.
	State transport.State

	// SessionID is the handler session UUID ("" when closed).
	SessionID string

	// LastError is the most recent failure on this transport ("" when
	// healthy).
	LastError string
}

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	// State is the supervisor state.
	State State

	// Tick is the number of completed control loop ticks.
	Tick uint64

	// Devices is the registry size.
	Devices int

	// Serial describes the serial transport slot.
	Serial TransportStatus

	// Network describes the TCP transport slot.
	Network TransportStatus

	// RunID identifies this supervisor instance in logs and captures.
	RunID string
}
