package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mcap")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("capture file was not created")
	}
}

func TestFileLoggerReadback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mcap")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(NewFrameEvent(TransportTCP, "s1", "127.0.0.1:502", DirectionOut, []byte{1, 2, 3}))
	logger.Log(NewStateEvent(TransportSerial, "s2", "/dev/ttyUSB0", "CLOSED", "OPEN"))
	logger.Log(NewStatusEvent(10, 3, true, true))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	var events []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Frame == nil || events[1].StateChange == nil || events[2].Status == nil {
		t.Errorf("unexpected event payloads: %+v", events)
	}
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mcap")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(NewFrameEvent(TransportTCP, "s1", "peer", DirectionOut, []byte{1}))
	logger.Log(NewFrameEvent(TransportSerial, "s2", "port", DirectionIn, []byte{2}))
	logger.Log(NewFrameEvent(TransportTCP, "s1", "peer", DirectionIn, []byte{3}))
	logger.Close()

	kind := TransportTCP
	r, err := NewFilteredReader(path, Filter{Transport: &kind})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ev.Transport != TransportTCP {
			t.Errorf("filter leaked event: %+v", ev)
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 TCP events, got %d", count)
	}
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mcap")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	// Logging after close must not panic.
	logger.Log(NewStatusEvent(1, 0, false, false))
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.mcap")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				logger.Log(NewStatusEvent(uint64(i), 1, true, true))
			}
		}()
	}
	wg.Wait()
	logger.Close()

	events, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 100 {
		t.Errorf("expected 100 events, got %d", len(events))
	}
}
