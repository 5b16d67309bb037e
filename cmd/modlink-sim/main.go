// Command modlink-sim runs a small Modbus TCP server for exercising the
// supervisor's network transport without field hardware.
//
// The simulator answers unit ID 1 and preloads a block of holding
// registers with a fixed fill value.
//
// Usage:
//
//	modlink-sim [flags]
//
// Flags:
//
//	-addr string     Listen address (default "127.0.0.1:1502")
//	-registers int   Number of holding registers to preload (default 16)
//	-fill uint       Fill value for each holding register (default 0xABCD)
//
// Examples:
//
//	# Default simulator, then point the supervisor at it
//	modlink-sim
//	modlink-supervisor -tcp-port 1502
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	modbus_server "github.com/hootrhino/mbserver"
	"github.com/hootrhino/mbserver/store"
)

// unitID is the Modbus unit (slave) address the simulator answers.
const unitID = 1

func main() {
	addr := flag.String("addr", "127.0.0.1:1502", "Listen address")
	registers := flag.Int("registers", 16, "Number of holding registers to preload")
	fill := flag.Uint("fill", 0xABCD, "Fill value for each holding register")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	server := modbus_server.NewServer(store.NewInMemoryStore(), unitID)
	server.SetErrorHandler(func(err error) {
		logger.Warn("server error", "error", err)
	})
	server.SetLogger(os.Stdout)

	holding := make([]uint16, *registers)
	for i := range holding {
		holding[i] = uint16(*fill)
	}
	if err := server.SetHoldingRegisters(holding); err != nil {
		logger.Error("failed to preload holding registers", "error", err)
		os.Exit(1)
	}

	if err := server.Start(*addr); err != nil {
		logger.Error("failed to start server", "addr", *addr, "error", err)
		os.Exit(1)
	}
	logger.Info("simulator listening",
		"addr", *addr,
		"unit", unitID,
		"registers", *registers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", "signal", sig.String())

	server.Stop()
}
