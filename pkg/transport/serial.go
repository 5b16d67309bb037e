package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	serial "github.com/hootrhino/goserial"

	"github.com/modlink-project/modlink-go/pkg/log"
)

// SerialConfig configures a serial RTU handler.
type SerialConfig struct {
	// Port is the serial device path (e.g. /dev/ttyUSB0). Required.
	Port string

	// BaudRate is the line speed (default: 9600).
	BaudRate int

	// Timeout bounds each Send and Receive (default: 5s).
	Timeout time.Duration

	// ReceiveBuffer is the read size used when Receive is called without
	// a limit (default: 256).
	ReceiveBuffer int

	// Logger receives capture events (nil = disabled).
	Logger log.Logger
}

// DefaultSerialConfig returns the default serial configuration.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:      9600,
		Timeout:       5 * time.Second,
		ReceiveBuffer: 256,
	}
}

// SerialHandler drives a Modbus RTU link over a serial port.
// The line is fixed at 8 data bits, no parity, 1 stop bit.
type SerialHandler struct {
	config SerialConfig

	// State
	state atomic.Int32

	// Synchronization
	mu      sync.RWMutex
	writeMu sync.Mutex

	// Guarded by mu
	port      io.ReadWriteCloser
	sessionID string
}

// NewSerialHandler creates a serial handler (not yet open).
func NewSerialHandler(config SerialConfig) *SerialHandler {
	if config.BaudRate == 0 {
		config.BaudRate = 9600
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.ReceiveBuffer == 0 {
		config.ReceiveBuffer = 256
	}

	h := &SerialHandler{config: config}
	h.state.Store(int32(StateClosed))
	return h
}

// Kind returns KindSerial.
func (h *SerialHandler) Kind() Kind {
	return KindSerial
}

// State returns the current session state.
func (h *SerialHandler) State() State {
	return State(h.state.Load())
}

// IsOpen reports whether a session is active.
func (h *SerialHandler) IsOpen() bool {
	return h.State() == StateOpen
}

// SessionID returns the UUID of the current session, or "" when closed.
func (h *SerialHandler) SessionID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionID
}

// Open acquires the serial port and starts a session.
func (h *SerialHandler) Open(ctx context.Context) error {
	if !h.state.CompareAndSwap(int32(StateClosed), int32(StateOpening)) {
		return ErrAlreadyOpen
	}

	if h.config.Port == "" {
		h.state.Store(int32(StateClosed))
		return fmt.Errorf("%w: no serial port configured", ErrOpenFailed)
	}
	if err := ctx.Err(); err != nil {
		h.state.Store(int32(StateClosed))
		return fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	port, err := serial.Open(&serial.Config{
		Address:  h.config.Port,
		BaudRate: h.config.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  h.config.Timeout,
	})
	if err != nil {
		h.state.Store(int32(StateClosed))
		h.captureError("open", err)
		return fmt.Errorf("%w: %s: %v", ErrOpenFailed, h.config.Port, err)
	}

	sessionID := uuid.New().String()
	h.mu.Lock()
	h.port = port
	h.sessionID = sessionID
	h.mu.Unlock()

	if !h.state.CompareAndSwap(int32(StateOpening), int32(StateOpen)) {
		// Closed from another goroutine mid-open
		h.mu.Lock()
		h.port = nil
		h.sessionID = ""
		h.mu.Unlock()
		port.Close()
		return fmt.Errorf("%w: closed during open", ErrOpenFailed)
	}

	h.captureState(sessionID, StateClosed, StateOpen)
	return nil
}

// Close releases the serial port. Idempotent; unblocks in-flight receives.
func (h *SerialHandler) Close() error {
	var previous State
	for {
		previous = h.State()
		if previous == StateClosed || previous == StateClosing {
			return nil
		}
		if h.state.CompareAndSwap(int32(previous), int32(StateClosing)) {
			break
		}
	}

	h.mu.Lock()
	port := h.port
	sessionID := h.sessionID
	h.port = nil
	h.sessionID = ""
	h.mu.Unlock()

	if port != nil {
		// Wakes any goroutine blocked in Read
		port.Close()
	}

	h.state.Store(int32(StateClosed))
	h.captureState(sessionID, previous, StateClosed)
	return nil
}

// Send writes the complete buffer to the port within the timeout.
func (h *SerialHandler) Send(p []byte) (int, error) {
	h.mu.RLock()
	port := h.port
	sessionID := h.sessionID
	h.mu.RUnlock()

	if port == nil || h.State() != StateOpen {
		return 0, ErrNotOpen
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		written := 0
		for written < len(p) {
			n, err := port.Write(p[written:])
			if err != nil {
				done <- fmt.Errorf("%w: after %d of %d bytes: %v", ErrWriteFailed, written, len(p), err)
				return
			}
			written += n
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			h.captureError("send", err)
			return 0, err
		}
	case <-ctx.Done():
		err := fmt.Errorf("%w: send of %d bytes exceeded %v", ErrTimeout, len(p), h.config.Timeout)
		h.captureError("send", err)
		return 0, err
	}

	h.captureFrame(sessionID, log.DirectionOut, p)
	return len(p), nil
}

// Receive reads at least one byte, at most max, within the timeout.
// A max of zero or less falls back to the configured receive buffer size.
func (h *SerialHandler) Receive(max int) ([]byte, error) {
	h.mu.RLock()
	port := h.port
	sessionID := h.sessionID
	h.mu.RUnlock()

	if port == nil || h.State() != StateOpen {
		return nil, ErrNotOpen
	}
	if max <= 0 {
		max = h.config.ReceiveBuffer
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	type readResult struct {
		data []byte
		err  error
	}
	done := make(chan readResult, 1)
	go func() {
		buf := make([]byte, max)
		for {
			n, err := port.Read(buf)
			if n > 0 {
				done <- readResult{data: append([]byte(nil), buf[:n]...)}
				return
			}
			if err != nil {
				done <- readResult{err: err}
				return
			}
			// Port-level timeout with no data; retry until our deadline
			if ctx.Err() != nil {
				return
			}
		}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if h.State() != StateOpen {
				// Close unblocked the read
				return nil, ErrNotOpen
			}
			err := fmt.Errorf("%w: %v", ErrReadFailed, res.err)
			h.captureError("receive", err)
			return nil, err
		}
		h.captureFrame(sessionID, log.DirectionIn, res.data)
		return res.data, nil
	case <-ctx.Done():
		err := fmt.Errorf("%w: no data within %v", ErrTimeout, h.config.Timeout)
		h.captureError("receive", err)
		return nil, err
	}
}

// Process performs one housekeeping pass. The serial link has nothing to
// refresh between polls, so this only verifies session consistency.
func (h *SerialHandler) Process() error {
	h.mu.RLock()
	port := h.port
	h.mu.RUnlock()

	if h.State() == StateOpen && port == nil {
		return ErrNotOpen
	}
	return nil
}

func (h *SerialHandler) captureState(sessionID string, from, to State) {
	if h.config.Logger == nil {
		return
	}
	h.config.Logger.Log(log.NewStateEvent(log.TransportSerial, sessionID, h.config.Port, from.String(), to.String()))
}

func (h *SerialHandler) captureFrame(sessionID string, dir log.Direction, data []byte) {
	if h.config.Logger == nil {
		return
	}
	h.config.Logger.Log(log.NewFrameEvent(log.TransportSerial, sessionID, h.config.Port, dir, data))
}

func (h *SerialHandler) captureError(op string, err error) {
	if h.config.Logger == nil {
		return
	}
	h.config.Logger.Log(log.NewErrorEvent(log.ComponentTransport, log.TransportSerial, h.SessionID(), op, err))
}
