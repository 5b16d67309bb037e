package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/modlink-project/modlink-go/pkg/log"
)

// NetworkConfig configures a Modbus TCP handler.
type NetworkConfig struct {
	// Host is the server address (default: 127.0.0.1).
	Host string

	// Port is the server TCP port (default: 502).
	Port int

	// Timeout bounds Open, Send and Receive (default: 5s).
	Timeout time.Duration

	// ReceiveBuffer is the read size used when Receive is called without
	// a limit (default: 256).
	ReceiveBuffer int

	// Logger receives capture events (nil = disabled).
	Logger log.Logger
}

// DefaultNetworkConfig returns the default network configuration.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Host:          "127.0.0.1",
		Port:          502,
		Timeout:       5 * time.Second,
		ReceiveBuffer: 256,
	}
}

// Addr returns the host:port dial target.
func (c NetworkConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NetworkHandler drives a Modbus TCP link over a plain socket.
type NetworkHandler struct {
	config NetworkConfig

	// State
	state      atomic.Int32
	peerClosed atomic.Bool

	// Synchronization
	mu      sync.RWMutex
	writeMu sync.Mutex

	// Guarded by mu
	conn      net.Conn
	sessionID string
}

// NewNetworkHandler creates a network handler (not yet open).
func NewNetworkHandler(config NetworkConfig) *NetworkHandler {
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.Port == 0 {
		config.Port = 502
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.ReceiveBuffer == 0 {
		config.ReceiveBuffer = 256
	}

	h := &NetworkHandler{config: config}
	h.state.Store(int32(StateClosed))
	return h
}

// Kind returns KindTCP.
func (h *NetworkHandler) Kind() Kind {
	return KindTCP
}

// State returns the current session state.
func (h *NetworkHandler) State() State {
	return State(h.state.Load())
}

// IsOpen reports whether a session is active.
func (h *NetworkHandler) IsOpen() bool {
	return h.State() == StateOpen
}

// SessionID returns the UUID of the current session, or "" when closed.
func (h *NetworkHandler) SessionID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionID
}

// Open dials the server and starts a session.
func (h *NetworkHandler) Open(ctx context.Context) error {
	if !h.state.CompareAndSwap(int32(StateClosed), int32(StateOpening)) {
		return ErrAlreadyOpen
	}

	dialCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", h.config.Addr())
	if err != nil {
		h.state.Store(int32(StateClosed))
		h.captureError("open", err)
		return fmt.Errorf("%w: %s: %v", ErrOpenFailed, h.config.Addr(), err)
	}

	sessionID := uuid.New().String()
	h.mu.Lock()
	h.conn = conn
	h.sessionID = sessionID
	h.mu.Unlock()
	h.peerClosed.Store(false)

	if !h.state.CompareAndSwap(int32(StateOpening), int32(StateOpen)) {
		// Closed from another goroutine mid-open
		h.mu.Lock()
		h.conn = nil
		h.sessionID = ""
		h.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%w: closed during open", ErrOpenFailed)
	}

	h.captureState(sessionID, StateClosed, StateOpen)
	return nil
}

// Close releases the connection. Idempotent; unblocks in-flight receives.
func (h *NetworkHandler) Close() error {
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
	conn := h.conn
	sessionID := h.sessionID
	h.conn = nil
	h.sessionID = ""
	h.mu.Unlock()

	if conn != nil {
		// Wakes any goroutine blocked in Read
		conn.Close()
	}

	h.state.Store(int32(StateClosed))
	h.captureState(sessionID, previous, StateClosed)
	return nil
}

// Send writes the complete buffer to the server within the timeout.
func (h *NetworkHandler) Send(p []byte) (int, error) {
	h.mu.RLock()
	conn := h.conn
	sessionID := h.sessionID
	h.mu.RUnlock()

	if conn == nil || h.State() != StateOpen {
		return 0, ErrNotOpen
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(h.config.Timeout))
	defer conn.SetWriteDeadline(time.Time{})

	written := 0
	for written < len(p) {
		n, err := conn.Write(p[written:])
		written += n
		if err != nil {
			if h.State() != StateOpen {
				return 0, ErrNotOpen
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				err = fmt.Errorf("%w: sent %d of %d bytes within %v", ErrTimeout, written, len(p), h.config.Timeout)
			} else {
				err = fmt.Errorf("%w: after %d of %d bytes: %v", ErrWriteFailed, written, len(p), err)
			}
			h.captureError("send", err)
			return 0, err
		}
	}

	h.captureFrame(sessionID, log.DirectionOut, p)
	return len(p), nil
}

// Receive reads at least one byte, at most max, within the timeout.
// A max of zero or less falls back to the configured receive buffer size.
func (h *NetworkHandler) Receive(max int) ([]byte, error) {
	h.mu.RLock()
	conn := h.conn
	sessionID := h.sessionID
	h.mu.RUnlock()

	if conn == nil || h.State() != StateOpen {
		return nil, ErrNotOpen
	}
	if max <= 0 {
		max = h.config.ReceiveBuffer
	}

	conn.SetReadDeadline(time.Now().Add(h.config.Timeout))
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, max)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if err == io.EOF {
				// Deliver the final bytes now, report the close on the
				// next receive
				h.peerClosed.Store(true)
			}
			data := append([]byte(nil), buf[:n]...)
			h.captureFrame(sessionID, log.DirectionIn, data)
			return data, nil
		}
		if err == nil {
			continue
		}

		if h.State() != StateOpen {
			// Close unblocked the read
			return nil, ErrNotOpen
		}
		if err == io.EOF {
			h.peerClosed.Store(true)
			err = fmt.Errorf("%w: %s", ErrPeerClosed, h.config.Addr())
		} else {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				err = fmt.Errorf("%w: no data within %v", ErrTimeout, h.config.Timeout)
			} else {
				err = fmt.Errorf("%w: %v", ErrReadFailed, err)
			}
		}
		h.captureError("receive", err)
		return nil, err
	}
}

// Process performs one housekeeping pass. Reports a session whose peer
// has gone away so the caller can close and reopen it.
func (h *NetworkHandler) Process() error {
	if !h.IsOpen() {
		return nil
	}
	if h.peerClosed.Load() {
		return ErrPeerClosed
	}
	return nil
}

func (h *NetworkHandler) captureState(sessionID string, from, to State) {
	if h.config.Logger == nil {
		return
	}
	h.config.Logger.Log(log.NewStateEvent(log.TransportTCP, sessionID, h.config.Addr(), from.String(), to.String()))
}

func (h *NetworkHandler) captureFrame(sessionID string, dir log.Direction, data []byte) {
	if h.config.Logger == nil {
		return
	}
	h.config.Logger.Log(log.NewFrameEvent(log.TransportTCP, sessionID, h.config.Addr(), dir, data))
}

func (h *NetworkHandler) captureError(op string, err error) {
	if h.config.Logger == nil {
		return
	}
	h.config.Logger.Log(log.NewErrorEvent(log.ComponentTransport, log.TransportTCP, h.SessionID(), op, err))
}
