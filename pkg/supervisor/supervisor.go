package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/modlink-project/modlink-go/pkg/backoff"
	"github.com/modlink-project/modlink-go/pkg/device"
	"github.com/modlink-project/modlink-go/pkg/log"
	"github.com/modlink-project/modlink-go/pkg/settings"
	"github.com/modlink-project/modlink-go/pkg/transport"
)

// Supervisor owns the registry, the transport handlers and the control
// loop. Multiple supervisors can coexist in one process.
type Supervisor struct {
	config   Config
	settings settings.Settings
	registry *device.Registry

	// runID identifies this instance in logs and captures.
	runID string

	serial  *transportSlot
	network *transportSlot

	// State
	state atomic.Int32
	tick  atomic.Uint64

	stopOnce sync.Once
	doneOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

// transportSlot tracks supervisor-side bookkeeping for one handler.
type transportSlot struct {
	handler transport.Handler
	nudge   chan struct{}

	mu        sync.Mutex
	available bool
	lastError string
	nextOpen  time.Time
	backoff   *backoff.Backoff
}

func newTransportSlot(h transport.Handler, cfg backoff.Config) *transportSlot {
	return &transportSlot{
		handler: h,
		nudge:   make(chan struct{}, 1),
		backoff: backoff.New(cfg),
	}
}

func (t *transportSlot) isAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.available
}

// markAvailable flags the transport usable and resets the reopen schedule.
func (t *transportSlot) markAvailable() {
	t.mu.Lock()
	t.available = true
	t.lastError = ""
	t.nextOpen = time.Time{}
	t.backoff.Reset()
	t.mu.Unlock()
}

// markUnavailable flags the transport down and schedules the next reopen
// attempt on the backoff curve.
func (t *transportSlot) markUnavailable(err error) {
	t.mu.Lock()
	t.available = false
	if err != nil {
		t.lastError = err.Error()
	}
	t.nextOpen = time.Now().Add(t.backoff.Next())
	t.mu.Unlock()
}

func (t *transportSlot) reopenDue(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.available && !t.nextOpen.IsZero() && !now.Before(t.nextOpen)
}

func (t *transportSlot) status() TransportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TransportStatus{
		Kind:      t.handler.Kind(),
		Available: t.available,
		State:     t.handler.State(),
		SessionID: t.handler.SessionID(),
		LastError: t.lastError,
	}
}

// New creates a supervisor with concrete serial and network handlers
// built from the settings.
func New(st settings.Settings, config Config) *Supervisor {
	serial := transport.NewSerialHandler(transport.SerialConfig{
		Port:     st.SerialPort,
		BaudRate: st.BaudRate,
		Timeout:  st.Timeout(),
		Logger:   config.Capture,
	})
	network := transport.NewNetworkHandler(transport.NetworkConfig{
		Host:    st.TCPHost,
		Port:    st.TCPPort,
		Timeout: st.Timeout(),
		Logger:  config.Capture,
	})
	return NewWithHandlers(st, config, serial, network)
}

// NewWithHandlers creates a supervisor around injected handlers.
func NewWithHandlers(st settings.Settings, config Config, serial, network transport.Handler) *Supervisor {
	config = config.withDefaults()

	s := &Supervisor{
		config:   config,
		settings: st,
		registry: device.NewRegistry(config.RegistryCapacity),
		runID:    uuid.New().String(),
		serial:   newTransportSlot(serial, config.Reopen),
		network:  newTransportSlot(network, config.Reopen),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.state.Store(int32(StateUninitialized))
	return s
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Registry returns the device registry.
func (s *Supervisor) Registry() *device.Registry {
	return s.registry
}

// RunID returns the UUID identifying this supervisor instance.
func (s *Supervisor) RunID() string {
	return s.runID
}

// Handler returns the handler for the given link kind, or nil.
func (s *Supervisor) Handler(kind transport.Kind) transport.Handler {
	switch kind {
	case transport.KindSerial:
		return s.serial.handler
	case transport.KindTCP:
		return s.network.handler
	default:
		return nil
	}
}

// Done returns a channel closed once the supervisor has stopped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.doneCh
}

// Status returns a point-in-time snapshot.
func (s *Supervisor) Status() Status {
	return Status{
		State:   s.State(),
		Tick:    s.tick.Load(),
		Devices: s.registry.Len(),
		Serial:  s.serial.status(),
		Network: s.network.status(),
		RunID:   s.runID,
	}
}

// Start opens both transports and spawns the control loop. A transport
// that fails to open is non-fatal unless RequireTransport is set and
// neither opens; degraded transports are retried in background.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return ErrAlreadyStarted
	}

	s.logInfo("supervisor starting", "run_id", s.runID)
	s.captureState(StateUninitialized, StateInitializing)

	serialErr := s.openSlot(ctx, s.serial)
	networkErr := s.openSlot(ctx, s.network)

	if serialErr != nil && networkErr != nil && s.config.RequireTransport {
		s.serial.handler.Close()
		s.network.handler.Close()
		s.state.CompareAndSwap(int32(StateInitializing), int32(StateStopped))
		s.captureState(StateInitializing, StateStopped)
		s.doneOnce.Do(func() { close(s.doneCh) })
		s.logWarn("no transport available, aborting",
			"serial_error", serialErr,
			"network_error", networkErr)
		return fmt.Errorf("%w: serial: %v; network: %v", ErrNoTransport, serialErr, networkErr)
	}

	if !s.state.CompareAndSwap(int32(StateInitializing), int32(StateRunning)) {
		// Stopped from another goroutine mid-start
		s.serial.handler.Close()
		s.network.handler.Close()
		return ErrStopped
	}

	s.captureState(StateInitializing, StateRunning)
	s.logInfo("supervisor running",
		"run_id", s.runID,
		"tick_interval", s.config.TickInterval,
		"serial", s.serial.isAvailable(),
		"network", s.network.isAvailable())

	s.wg.Add(3)
	go s.tickLoop()
	go s.transportWorker(s.serial)
	go s.transportWorker(s.network)

	return nil
}

// Stop shuts the supervisor down: closes both transports, terminates the
// loop and workers, and waits for them. Safe to call from any goroutine;
// repeat calls are no-ops.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		from := s.State()
		if from == StateStopped {
			return
		}

		s.state.Store(int32(StateShuttingDown))
		s.captureState(from, StateShuttingDown)
		s.logInfo("supervisor stopping", "run_id", s.runID)

		close(s.stopCh)
		s.wg.Wait()

		// Workers are done; release both transports
		s.serial.handler.Close()
		s.network.handler.Close()

		s.state.Store(int32(StateStopped))
		s.captureState(StateShuttingDown, StateStopped)
		s.doneOnce.Do(func() { close(s.doneCh) })
		s.logInfo("supervisor stopped", "run_id", s.runID, "ticks", s.tick.Load())
	})
	return nil
}

// Run starts the supervisor and blocks until the context is cancelled or
// a configured bound stops it, then shuts down.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.doneCh:
		return nil
	}
	return s.Stop()
}

// openSlot opens one transport and updates its slot bookkeeping.
func (s *Supervisor) openSlot(ctx context.Context, slot *transportSlot) error {
	kind := slot.handler.Kind()

	if err := slot.handler.Open(ctx); err != nil {
		slot.markUnavailable(err)
		s.logWarn("transport unavailable",
			"transport", kind.String(),
			"error", err)
		return err
	}

	slot.markAvailable()
	s.logInfo("transport open",
		"transport", kind.String(),
		"session", slot.handler.SessionID())
	return nil
}

// tickLoop drives the registry and nudges the transport workers.
func (s *Supervisor) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if s.config.MaxDuration > 0 {
		timer := time.NewTimer(s.config.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-deadline:
			s.logInfo("run duration reached", "duration", s.config.MaxDuration)
			go s.Stop()
			return
		case <-ticker.C:
			s.doTick()
			if s.config.MaxTicks > 0 && s.tick.Load() >= s.config.MaxTicks {
				s.logInfo("tick bound reached", "ticks", s.tick.Load())
				go s.Stop()
				return
			}
		}
	}
}

// doTick runs one control loop iteration.
func (s *Supervisor) doTick() {
	tick := s.tick.Add(1)

	polled := s.registry.Process()

	// Non-blocking nudges; a busy worker simply coalesces them
	select {
	case s.serial.nudge <- struct{}{}:
	default:
	}
	select {
	case s.network.nudge <- struct{}{}:
	default:
	}

	if s.config.StatusEvery > 0 && tick%s.config.StatusEvery == 0 {
		s.reportStatus(tick, polled)
	}
}

// reportStatus emits one status line and one capture event.
func (s *Supervisor) reportStatus(tick uint64, polled int) {
	serialUp := s.serial.isAvailable()
	networkUp := s.network.isAvailable()

	s.logInfo("status",
		"tick", tick,
		"devices", s.registry.Len(),
		"polled", polled,
		"serial", serialUp,
		"network", networkUp)

	if s.config.Capture != nil {
		s.config.Capture.Log(log.NewStatusEvent(tick, s.registry.Len(), serialUp, networkUp))
	}
}

// transportWorker services one transport slot. Each nudge triggers at
// most one housekeeping or reopen pass, so a slow transport can never
// stall the tick loop or the other transport.
func (s *Supervisor) transportWorker(slot *transportSlot) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-slot.nudge:
			s.serviceTransport(slot)
		}
	}
}

// serviceTransport runs housekeeping on an available transport or a
// reopen attempt on a downed one.
func (s *Supervisor) serviceTransport(slot *transportSlot) {
	kind := slot.handler.Kind()

	if slot.isAvailable() {
		if !slot.handler.IsOpen() {
			// Closed out-of-band, e.g. from the console
			slot.markUnavailable(transport.ErrNotOpen)
			s.logWarn("transport closed",
				"transport", kind.String())
			return
		}

		err := slot.handler.Process()
		if err == nil {
			return
		}

		if errors.Is(err, transport.ErrPeerClosed) || errors.Is(err, transport.ErrNotOpen) {
			slot.handler.Close()
			slot.markUnavailable(err)
			s.logWarn("transport lost",
				"transport", kind.String(),
				"error", err)
			return
		}

		// Recoverable housekeeping error; keep the session
		s.logWarn("transport process error",
			"transport", kind.String(),
			"error", err)
		return
	}

	if s.config.DisableReopen || !slot.reopenDue(time.Now()) {
		return
	}

	// No reopen attempts once shutdown has begun
	select {
	case <-s.stopCh:
		return
	default:
	}

	err := slot.handler.Open(context.Background())
	if err != nil {
		if errors.Is(err, transport.ErrAlreadyOpen) {
			// Opened out-of-band, e.g. from the console
			slot.markAvailable()
			return
		}
		slot.markUnavailable(err)
		s.logWarn("transport reopen failed",
			"transport", kind.String(),
			"error", err)
		return
	}

	slot.markAvailable()
	s.logInfo("transport reopened",
		"transport", kind.String(),
		"session", slot.handler.SessionID())
}

// logInfo logs an info message if logging is enabled.
func (s *Supervisor) logInfo(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, args...)
	}
}

// logWarn logs a warning if logging is enabled.
func (s *Supervisor) logWarn(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, args...)
	}
}

// captureState emits a supervisor state-change capture event.
func (s *Supervisor) captureState(from, to State) {
	if s.config.Capture == nil {
		return
	}
	s.config.Capture.Log(log.Event{
		Timestamp:   time.Now(),
		Component:   log.ComponentSupervisor,
		SessionID:   s.runID,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{From: from.String(), To: to.String()},
	})
}
