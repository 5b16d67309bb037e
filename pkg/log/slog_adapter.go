package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders capture events onto an slog.Logger.
// Useful in development to watch transport traffic on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("component", event.Component.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Transport != TransportNone {
		attrs = append(attrs, slog.String("transport", event.Transport.String()))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session", event.SessionID))
	}
	if event.Remote != "" {
		attrs = append(attrs, slog.String("remote", event.Remote))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.From),
			slog.String("new_state", event.StateChange.To),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("op", event.Error.Op),
			slog.String("error_msg", event.Error.Message),
		)
	case event.Status != nil:
		attrs = append(attrs,
			slog.Uint64("tick", event.Status.Tick),
			slog.Int("devices", event.Status.Devices),
			slog.Bool("serial_up", event.Status.SerialUp),
			slog.Bool("tcp_up", event.Status.TCPUp),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "capture", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
