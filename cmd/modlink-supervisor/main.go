// Command modlink-supervisor runs the Modbus device-communication
// supervisor.
//
// The supervisor owns a device registry and two transports, a serial RTU
// link and a Modbus TCP link. It polls enabled devices on a fixed tick,
// reports status periodically, and keeps degraded transports on a reopen
// schedule. A transport that cannot be opened at startup is non-fatal
// unless -require-transport is set.
//
// Usage:
//
//	modlink-supervisor [flags]
//
// Flags:
//
//	-config string       Settings file path (YAML)
//	-serial-port string  Serial device path (default "/dev/ttyUSB0")
//	-baud int            Serial baud rate (default 9600)
//	-tcp-host string     Modbus TCP host (default "127.0.0.1")
//	-tcp-port int        Modbus TCP port (default 502)
//	-timeout-ms int      Transport timeout in milliseconds (default 5000)
//	-tick-ms int         Control loop tick interval in milliseconds (default 100)
//	-duration duration   Stop after this run time (0 = run until signal)
//	-max-ticks uint      Stop after this many ticks (0 = unbounded)
//	-status-every uint   Status report every N ticks, 0 = off (default 10)
//	-require-transport   Abort startup when neither transport opens
//	-no-reopen           Disable automatic transport reopen
//	-capture string      Write capture events to this file
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-interactive         Start the operator console
//	-no-samples          Do not preload the sample devices
//
// Examples:
//
//	# Run against a local simulator until interrupted
//	modlink-supervisor -tcp-port 1502
//
//	# Ten seconds with a capture file, settings from disk
//	modlink-supervisor -config modlink.yaml -duration 10s -capture run.mcap
//
//	# Operator console
//	modlink-supervisor -interactive -tcp-port 1502
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modlink-project/modlink-go/pkg/device"
	"github.com/modlink-project/modlink-go/pkg/log"
	"github.com/modlink-project/modlink-go/pkg/settings"
	"github.com/modlink-project/modlink-go/pkg/supervisor"
)

// Options holds the command configuration.
type Options struct {
	ConfigFile       string
	SerialPort       string
	BaudRate         int
	TCPHost          string
	TCPPort          int
	TimeoutMs        int
	TickMs           int
	Duration         time.Duration
	MaxTicks         uint64
	StatusEvery      uint64
	RequireTransport bool
	NoReopen         bool
	CaptureFile      string
	LogLevel         string
	Interactive      bool
	NoSamples        bool
}

var opts Options

func init() {
	defaults := settings.Default()

	flag.StringVar(&opts.ConfigFile, "config", "", "Settings file path (YAML)")
	flag.StringVar(&opts.SerialPort, "serial-port", defaults.SerialPort, "Serial device path")
	flag.IntVar(&opts.BaudRate, "baud", defaults.BaudRate, "Serial baud rate")
	flag.StringVar(&opts.TCPHost, "tcp-host", defaults.TCPHost, "Modbus TCP host")
	flag.IntVar(&opts.TCPPort, "tcp-port", defaults.TCPPort, "Modbus TCP port")
	flag.IntVar(&opts.TimeoutMs, "timeout-ms", defaults.TimeoutMs, "Transport timeout in milliseconds")
	flag.IntVar(&opts.TickMs, "tick-ms", 100, "Control loop tick interval in milliseconds")
	flag.DurationVar(&opts.Duration, "duration", 0, "Stop after this run time (0 = run until signal)")
	flag.Uint64Var(&opts.MaxTicks, "max-ticks", 0, "Stop after this many ticks (0 = unbounded)")
	flag.Uint64Var(&opts.StatusEvery, "status-every", 10, "Status report every N ticks (0 = off)")
	flag.BoolVar(&opts.RequireTransport, "require-transport", false, "Abort startup when neither transport opens")
	flag.BoolVar(&opts.NoReopen, "no-reopen", false, "Disable automatic transport reopen")
	flag.StringVar(&opts.CaptureFile, "capture", "", "Write capture events to this file")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.Interactive, "interactive", false, "Start the operator console")
	flag.BoolVar(&opts.NoSamples, "no-samples", false, "Do not preload the sample devices")
}

func main() {
	flag.Parse()

	logger := setupLogging(opts.LogLevel)

	st, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "modlink-supervisor: %v\n", err)
		os.Exit(1)
	}

	config := supervisor.DefaultConfig()
	config.TickInterval = time.Duration(opts.TickMs) * time.Millisecond
	config.MaxTicks = opts.MaxTicks
	config.MaxDuration = opts.Duration
	config.StatusEvery = opts.StatusEvery
	config.RequireTransport = opts.RequireTransport
	config.DisableReopen = opts.NoReopen
	config.Logger = logger

	if opts.CaptureFile != "" {
		capture, err := log.NewFileLogger(opts.CaptureFile)
		if err != nil {
			logger.Error("capture file not writable", "path", opts.CaptureFile, "error", err)
			os.Exit(1)
		}
		defer capture.Close()
		config.Capture = capture
		logger.Info("capturing events", "path", opts.CaptureFile)
	}

	sup := supervisor.New(st, config)

	if !opts.NoSamples {
		loadSampleDevices(sup.Registry(), logger)
	}

	logger.Info("modlink supervisor",
		"serial_port", st.SerialPort,
		"baud", st.BaudRate,
		"tcp", st.TCPAddr(),
		"timeout", st.Timeout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if opts.Interactive {
		console, err := newConsole(sup, st)
		if err != nil {
			logger.Error("console unavailable", "error", err)
			sup.Stop()
			os.Exit(1)
		}
		console.Run(ctx, cancel)
		sup.Stop()
		return
	}

	// Wait for a shutdown signal or a configured bound
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-sup.Done():
	}

	sup.Stop()
}

// setupLogging builds the operational logger.
func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadSettings resolves settings from defaults, the optional settings
// file, and explicit flag overrides, in that order.
func loadSettings() (settings.Settings, error) {
	st := settings.Default()

	if opts.ConfigFile != "" {
		loaded, err := settings.Load(opts.ConfigFile)
		if err != nil {
			return settings.Settings{}, err
		}
		st = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "serial-port":
			st.SerialPort = opts.SerialPort
		case "baud":
			st.BaudRate = opts.BaudRate
		case "tcp-host":
			st.TCPHost = opts.TCPHost
		case "tcp-port":
			st.TCPPort = opts.TCPPort
		case "timeout-ms":
			st.TimeoutMs = opts.TimeoutMs
		}
	})

	if err := st.Validate(); err != nil {
		return settings.Settings{}, err
	}
	return st, nil
}

// loadSampleDevices preloads the registry with the reference devices.
func loadSampleDevices(reg *device.Registry, logger *slog.Logger) {
	samples := []struct {
		id   int
		name string
		unit uint8
	}{
		{1, "Temperature Sensor", 1},
		{2, "Pressure Sensor", 2},
		{3, "Flow Meter", 3},
	}

	for _, s := range samples {
		if err := reg.Add(s.id, s.name, s.unit); err != nil {
			logger.Warn("sample device not added", "id", s.id, "error", err)
		}
	}
	logger.Info("sample devices loaded", "count", reg.Len())
}
