// Package log provides structured event capture for MODLINK.
//
// This package defines the Logger interface and Event types for recording
// what the supervisor and its transport handlers do: frames on the wire,
// session state changes, errors, and periodic status. It is separate from
// operational logging (slog) - capture produces a complete machine-readable
// trace for debugging and analysis, encoded as a CBOR stream.
//
// # Basic Usage
//
// Components accept a Logger in their config:
//
//	// For development: render events onto the console via slog
//	cfg.Capture = log.NewSlogAdapter(slog.Default())
//
//	// For production: write a binary capture file
//	cfg.Capture, _ = log.NewFileLogger("/var/log/modlink/run.mcap")
//
//	// Both at once
//	cfg.Capture = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// Capture files are read back with Reader (see cmd/modlink-log).
package log
