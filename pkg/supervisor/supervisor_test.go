package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/modlink-project/modlink-go/pkg/backoff"
	"github.com/modlink-project/modlink-go/pkg/log"
	"github.com/modlink-project/modlink-go/pkg/settings"
	"github.com/modlink-project/modlink-go/pkg/transport"
)

// fakeHandler implements transport.Handler for supervisor tests.
type fakeHandler struct {
	kind transport.Kind

	mu           sync.Mutex
	open         bool
	sessionID    string
	openErr      error
	processErr   error
	openCalls    int
	closeCalls   int
	processCalls int
}

func newFakeHandler(kind transport.Kind) *fakeHandler {
	return &fakeHandler{kind: kind}
}

func (f *fakeHandler) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	if f.open {
		return transport.ErrAlreadyOpen
	}
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	f.sessionID = uuid.New().String()
	return nil
}

func (f *fakeHandler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.open = false
	f.sessionID = ""
	return nil
}

func (f *fakeHandler) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeHandler) Send(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return 0, transport.ErrNotOpen
	}
	return len(p), nil
}

func (f *fakeHandler) Receive(max int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil, transport.ErrNotOpen
	}
	return []byte{0x00}, nil
}

// Process returns the configured error once, then nil.
func (f *fakeHandler) Process() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processCalls++
	err := f.processErr
	f.processErr = nil
	return err
}

func (f *fakeHandler) Kind() transport.Kind {
	return f.kind
}

func (f *fakeHandler) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		return transport.StateOpen
	}
	return transport.StateClosed
}

func (f *fakeHandler) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func (f *fakeHandler) setOpenErr(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

func (f *fakeHandler) setProcessErr(err error) {
	f.mu.Lock()
	f.processErr = err
	f.mu.Unlock()
}

func (f *fakeHandler) counts() (opens, closes, processes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCalls, f.closeCalls, f.processCalls
}

// recordingLogger captures events for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingLogger) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

// newTestSupervisor builds a supervisor on fake handlers with a fast tick.
func newTestSupervisor(config Config) (*Supervisor, *fakeHandler, *fakeHandler) {
	serial := newFakeHandler(transport.KindSerial)
	network := newFakeHandler(transport.KindTCP)
	if config.TickInterval == 0 {
		config.TickInterval = 5 * time.Millisecond
	}
	if config.Reopen == (backoff.Config{}) {
		config.Reopen = backoff.Config{
			Initial:    5 * time.Millisecond,
			Max:        20 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     0.01,
		}
	}
	s := NewWithHandlers(settings.Default(), config, serial, network)
	return s, serial, network
}

// waitFor polls until the condition holds or the timeout expires.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestSupervisorStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "UNINITIALIZED"},
		{StateInitializing, "INITIALIZING"},
		{StateRunning, "RUNNING"},
		{StateShuttingDown, "SHUTTING_DOWN"},
		{StateStopped, "STOPPED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.TickInterval != 100*time.Millisecond {
		t.Errorf("TickInterval = %v, want 100ms", config.TickInterval)
	}
	if config.StatusEvery != 10 {
		t.Errorf("StatusEvery = %d, want 10", config.StatusEvery)
	}
	if config.RequireTransport {
		t.Error("RequireTransport set by default")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestSupervisorStartStop(t *testing.T) {
	s, serial, network := newTestSupervisor(Config{})

	if s.State() != StateUninitialized {
		t.Errorf("initial state = %v, want UNINITIALIZED", s.State())
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if s.State() != StateRunning {
		t.Errorf("state = %v after start, want RUNNING", s.State())
	}
	if !serial.IsOpen() || !network.IsOpen() {
		t.Error("transports not open after start")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %v after stop, want STOPPED", s.State())
	}
	if serial.IsOpen() || network.IsOpen() {
		t.Error("transports still open after stop")
	}

	// Repeat stop is a no-op
	if err := s.Stop(); err != nil {
		t.Errorf("second stop = %v, want nil", err)
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after stop")
	}
}

func TestSupervisorStartWhileRunning(t *testing.T) {
	s, _, _ := newTestSupervisor(Config{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start = %v, want ErrAlreadyStarted", err)
	}
}

func TestSupervisorStopBeforeStart(t *testing.T) {
	s, _, _ := newTestSupervisor(Config{})

	if err := s.Stop(); err != nil {
		t.Fatalf("stop before start = %v, want nil", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %v, want STOPPED", s.State())
	}

	// A stopped supervisor does not restart
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("start after stop = %v, want ErrAlreadyStarted", err)
	}
}

func TestSupervisorDegradedSerial(t *testing.T) {
	s, serial, network := newTestSupervisor(Config{DisableReopen: true})
	serial.setOpenErr(transport.ErrOpenFailed)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start with one dead transport = %v, want nil", err)
	}
	defer s.Stop()

	status := s.Status()
	if status.Serial.Available {
		t.Error("serial reported available after failed open")
	}
	if status.Serial.LastError == "" {
		t.Error("serial LastError empty after failed open")
	}
	if !status.Network.Available {
		t.Error("network unavailable after successful open")
	}
	if !network.IsOpen() {
		t.Error("network handler not open")
	}
}

func TestSupervisorRequireTransportAborts(t *testing.T) {
	s, serial, network := newTestSupervisor(Config{RequireTransport: true})
	serial.setOpenErr(transport.ErrOpenFailed)
	network.setOpenErr(transport.ErrOpenFailed)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("start = %v, want ErrNoTransport", err)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %v after aborted start, want STOPPED", s.State())
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after aborted start")
	}
}

func TestSupervisorBothTransportsDownNonFatal(t *testing.T) {
	s, serial, network := newTestSupervisor(Config{DisableReopen: true})
	serial.setOpenErr(transport.ErrOpenFailed)
	network.setOpenErr(transport.ErrOpenFailed)

	// Without RequireTransport the supervisor runs fully degraded
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start = %v, want nil", err)
	}
	defer s.Stop()

	if s.State() != StateRunning {
		t.Errorf("state = %v, want RUNNING", s.State())
	}
}

func TestSupervisorTicksRegistry(t *testing.T) {
	s, _, _ := newTestSupervisor(Config{})

	reg := s.Registry()
	if err := reg.Add(1, "Temperature Sensor", 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := reg.Add(2, "Pressure Sensor", 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := reg.Disable(2); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	if !waitFor(2*time.Second, func() bool {
		d, err := reg.Get(1)
		return err == nil && d.Polls > 0
	}) {
		t.Fatal("enabled device never polled")
	}

	disabled, err := reg.Get(2)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if disabled.Polls != 0 {
		t.Errorf("disabled device polled %d times", disabled.Polls)
	}
}

func TestSupervisorMaxTicksSelfStop(t *testing.T) {
	s, _, _ := newTestSupervisor(Config{MaxTicks: 5})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not self-stop at tick bound")
	}

	if s.State() != StateStopped {
		t.Errorf("state = %v, want STOPPED", s.State())
	}
	if got := s.Status().Tick; got != 5 {
		t.Errorf("ticks = %d, want 5", got)
	}
}

func TestSupervisorMaxDurationSelfStop(t *testing.T) {
	s, _, _ := newTestSupervisor(Config{MaxDuration: 50 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not self-stop at duration bound")
	}

	if s.State() != StateStopped {
		t.Errorf("state = %v, want STOPPED", s.State())
	}
}

func TestSupervisorRunCancel(t *testing.T) {
	s, _, _ := newTestSupervisor(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	if s.State() != StateStopped {
		t.Errorf("state = %v after run, want STOPPED", s.State())
	}
}

func TestSupervisorReopenAfterPeerClosed(t *testing.T) {
	s, _, network := newTestSupervisor(Config{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	// Simulate the peer dropping the TCP session
	network.setProcessErr(transport.ErrPeerClosed)

	if !waitFor(2*time.Second, func() bool {
		return !s.Status().Network.Available
	}) {
		t.Fatal("network never marked unavailable after peer close")
	}

	// The worker reopens it on the backoff schedule
	if !waitFor(2*time.Second, func() bool {
		return s.Status().Network.Available && network.IsOpen()
	}) {
		t.Fatal("network never reopened")
	}

	opens, closes, _ := network.counts()
	if opens < 2 {
		t.Errorf("open calls = %d, want at least 2", opens)
	}
	if closes < 1 {
		t.Errorf("close calls = %d, want at least 1", closes)
	}
}

func TestSupervisorReopenAfterOutOfBandClose(t *testing.T) {
	s, _, network := newTestSupervisor(Config{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	// Close the handler directly, as the operator console would
	if err := network.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// The worker must notice the closed handler, not report it up forever
	if !waitFor(2*time.Second, func() bool {
		status := s.Status().Network
		return !status.Available && status.LastError != ""
	}) {
		t.Fatal("network never marked unavailable after out-of-band close")
	}

	// And then reopen it on the backoff schedule
	if !waitFor(2*time.Second, func() bool {
		return s.Status().Network.Available && network.IsOpen()
	}) {
		t.Fatal("network never reopened")
	}

	opens, _, _ := network.counts()
	if opens < 2 {
		t.Errorf("open calls = %d, want at least 2", opens)
	}
}

func TestSupervisorDisableReopen(t *testing.T) {
	s, _, network := newTestSupervisor(Config{DisableReopen: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	network.setProcessErr(transport.ErrPeerClosed)

	if !waitFor(2*time.Second, func() bool {
		return !s.Status().Network.Available
	}) {
		t.Fatal("network never marked unavailable after peer close")
	}

	// Give the workers time to (wrongly) reopen
	time.Sleep(100 * time.Millisecond)

	if s.Status().Network.Available {
		t.Error("network reopened with reopen disabled")
	}
	opens, _, _ := network.counts()
	if opens != 1 {
		t.Errorf("open calls = %d, want 1", opens)
	}
}

func TestSupervisorStatusReports(t *testing.T) {
	recorder := &recordingLogger{}
	s, _, _ := newTestSupervisor(Config{
		StatusEvery: 2,
		Capture:     recorder,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	if !waitFor(2*time.Second, func() bool {
		for _, ev := range recorder.snapshot() {
			if ev.Category == log.CategoryStatus {
				return true
			}
		}
		return false
	}) {
		t.Fatal("no status capture event emitted")
	}

	var status *log.StatusEvent
	for _, ev := range recorder.snapshot() {
		if ev.Category == log.CategoryStatus {
			status = ev.Status
			break
		}
	}
	if status == nil {
		t.Fatal("status event missing payload")
	}
	if status.Tick == 0 || status.Tick%2 != 0 {
		t.Errorf("status tick = %d, want a positive multiple of 2", status.Tick)
	}
	if !status.SerialUp || !status.TCPUp {
		t.Error("status reports transports down on a healthy supervisor")
	}
}

func TestSupervisorStateCaptureEvents(t *testing.T) {
	recorder := &recordingLogger{}
	s, _, _ := newTestSupervisor(Config{Capture: recorder})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.Stop()

	var transitions []string
	for _, ev := range recorder.snapshot() {
		if ev.Component == log.ComponentSupervisor && ev.Category == log.CategoryState {
			transitions = append(transitions, ev.StateChange.From+">"+ev.StateChange.To)
		}
	}

	want := []string{
		"UNINITIALIZED>INITIALIZING",
		"INITIALIZING>RUNNING",
		"RUNNING>SHUTTING_DOWN",
		"SHUTTING_DOWN>STOPPED",
	}
	if len(transitions) != len(want) {
		t.Fatalf("state transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestSupervisorRunIDUnique(t *testing.T) {
	a, _, _ := newTestSupervisor(Config{})
	b, _, _ := newTestSupervisor(Config{})

	if a.RunID() == "" || b.RunID() == "" {
		t.Fatal("run ID empty")
	}
	if a.RunID() == b.RunID() {
		t.Errorf("run ID %s shared across instances", a.RunID())
	}
}

func TestSupervisorHandlerAccessor(t *testing.T) {
	s, serial, network := newTestSupervisor(Config{})

	if got := s.Handler(transport.KindSerial); got != transport.Handler(serial) {
		t.Error("Handler(serial) returned a different handler")
	}
	if got := s.Handler(transport.KindTCP); got != transport.Handler(network) {
		t.Error("Handler(tcp) returned a different handler")
	}
	if got := s.Handler(transport.Kind(99)); got != nil {
		t.Error("Handler(unknown) returned a handler")
	}
}

func TestSupervisorConcurrentStop(t *testing.T) {
	s, _, _ := newTestSupervisor(Config{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()

	if s.State() != StateStopped {
		t.Errorf("state = %v, want STOPPED", s.State())
	}
}
