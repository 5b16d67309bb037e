// Command modlink-log is a tool for viewing and analyzing MODLINK
// capture files.
//
// Capture files are created by running modlink-supervisor with the
// -capture flag.
//
// Usage:
//
//	modlink-log <command> [flags] <file.mcap>
//
// Commands:
//
//	view     View capture file in human-readable format
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	modlink-log view run.mcap
//
//	# View only TCP frames
//	modlink-log view -transport tcp -category frame run.mcap
//
//	# View one session
//	modlink-log view -session 6f1c0f7e-8a4b-4d2e-9a51-1c2d3e4f5a6b run.mcap
//
//	# Show statistics
//	modlink-log stats run.mcap
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/modlink-project/modlink-go/pkg/log"
)

const usage = `modlink-log - MODLINK Capture Analyzer

Usage:
  modlink-log <command> [flags] <file.mcap>

Commands:
  view     View capture file in human-readable format
  stats    Show statistics about the capture file

Use "modlink-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `modlink-log view - View capture file in human-readable format

Usage:
  modlink-log view [flags] <file.mcap>

Flags:
`)
		fs.PrintDefaults()
	}

	transportFlag := fs.String("transport", "", "Filter by transport (serial, tcp)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (frame, state, error, status)")
	session := fs.String("session", "", "Filter by session ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	var filter log.Filter
	filter.SessionID = *session

	if *transportFlag != "" {
		k, err := parseTransportFlag(*transportFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Transport = &k
	}
	if *direction != "" {
		d, err := parseDirectionFlag(*direction)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := parseCategoryFlag(*category)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Category = &c
	}

	if err := viewFile(fs.Arg(0), filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `modlink-log stats - Show statistics about the capture file

Usage:
  modlink-log stats <file.mcap>
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := statsFile(fs.Arg(0), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// viewFile streams matching events as one line each.
func viewFile(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return err
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		fmt.Fprintln(w, formatEvent(event))
		count++
	}

	fmt.Fprintf(w, "%d events\n", count)
	return nil
}

// formatEvent renders one event on one line.
func formatEvent(event log.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %-10s %-6s",
		event.Timestamp.Format("15:04:05.000000"),
		event.Component,
		event.Category)

	if event.Transport != log.TransportNone {
		fmt.Fprintf(&b, " %-6s", event.Transport)
	}
	if event.SessionID != "" {
		fmt.Fprintf(&b, " [%s]", shortID(event.SessionID))
	}

	switch {
	case event.Frame != nil:
		fmt.Fprintf(&b, " %s %dB %s", event.Direction, event.Frame.Size, hex.EncodeToString(event.Frame.Data))
		if event.Frame.Truncated {
			b.WriteString("..")
		}
	case event.StateChange != nil:
		fmt.Fprintf(&b, " %s -> %s", event.StateChange.From, event.StateChange.To)
	case event.Error != nil:
		fmt.Fprintf(&b, " op=%s %s", event.Error.Op, event.Error.Message)
	case event.Status != nil:
		fmt.Fprintf(&b, " tick=%d devices=%d serial=%s tcp=%s",
			event.Status.Tick,
			event.Status.Devices,
			upDown(event.Status.SerialUp),
			upDown(event.Status.TCPUp))
	}

	if event.Remote != "" {
		fmt.Fprintf(&b, " (%s)", event.Remote)
	}
	return b.String()
}

// statsFile summarizes a capture file.
func statsFile(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	var (
		total      int
		byCategory = map[log.Category]int{}
		byKind     = map[log.TransportKind]int{}
		sessions   = map[string]bool{}

		framesIn, framesOut int
		bytesIn, bytesOut   int
		errorCount          int

		first, last = log.Event{}, log.Event{}
	)

	for {
		event, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		if total == 0 {
			first = event
		}
		last = event
		total++

		byCategory[event.Category]++
		if event.Transport != log.TransportNone {
			byKind[event.Transport]++
		}
		if event.SessionID != "" {
			sessions[event.SessionID] = true
		}

		switch event.Category {
		case log.CategoryFrame:
			if event.Frame == nil {
				continue
			}
			if event.Direction == log.DirectionIn {
				framesIn++
				bytesIn += event.Frame.Size
			} else {
				framesOut++
				bytesOut += event.Frame.Size
			}
		case log.CategoryError:
			errorCount++
		}
	}

	fmt.Fprintf(w, "File:     %s\n", path)
	fmt.Fprintf(w, "Events:   %d\n", total)
	if total > 0 {
		fmt.Fprintf(w, "Span:     %s .. %s (%s)\n",
			first.Timestamp.Format("15:04:05.000"),
			last.Timestamp.Format("15:04:05.000"),
			last.Timestamp.Sub(first.Timestamp).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Sessions: %d\n", len(sessions))

	fmt.Fprintln(w, "\nBy category:")
	for _, c := range []log.Category{log.CategoryFrame, log.CategoryState, log.CategoryError, log.CategoryStatus} {
		if byCategory[c] > 0 {
			fmt.Fprintf(w, "  %-8s %d\n", c, byCategory[c])
		}
	}

	if len(byKind) > 0 {
		fmt.Fprintln(w, "\nBy transport:")
		for _, k := range []log.TransportKind{log.TransportSerial, log.TransportTCP} {
			if byKind[k] > 0 {
				fmt.Fprintf(w, "  %-8s %d\n", k, byKind[k])
			}
		}
	}

	fmt.Fprintln(w, "\nFrames:")
	fmt.Fprintf(w, "  in:  %d frames, %d bytes\n", framesIn, bytesIn)
	fmt.Fprintf(w, "  out: %d frames, %d bytes\n", framesOut, bytesOut)

	if errorCount > 0 {
		fmt.Fprintf(w, "\nErrors:   %d\n", errorCount)
	}
	return nil
}

func parseTransportFlag(s string) (log.TransportKind, error) {
	switch strings.ToLower(s) {
	case "serial":
		return log.TransportSerial, nil
	case "tcp":
		return log.TransportTCP, nil
	default:
		return 0, fmt.Errorf("unknown transport %q (serial, tcp)", s)
	}
}

func parseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out)", s)
	}
}

func parseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "frame":
		return log.CategoryFrame, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	case "status":
		return log.CategoryStatus, nil
	default:
		return 0, fmt.Errorf("unknown category %q (frame, state, error, status)", s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
