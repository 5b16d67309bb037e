package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/modlink-project/modlink-go/pkg/settings"
	"github.com/modlink-project/modlink-go/pkg/supervisor"
	"github.com/modlink-project/modlink-go/pkg/transport"
)

// console handles the interactive operator mode.
type console struct {
	sup *supervisor.Supervisor
	st  settings.Settings
	rl  *readline.Instance
}

// newConsole creates a new operator console.
func newConsole(sup *supervisor.Supervisor, st settings.Settings) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "modlink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &console{sup: sup, st: st, rl: rl}, nil
}

// Run starts the interactive command loop.
func (c *console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "status", "st":
			c.cmdStatus()

		case "list", "ls":
			c.cmdList()

		case "add":
			c.cmdAdd(args)

		case "remove", "rm":
			c.cmdRemove(args)

		case "enable":
			c.cmdSetEnabled(args, true)

		case "disable":
			c.cmdSetEnabled(args, false)

		case "open":
			c.cmdOpen(args)

		case "close":
			c.cmdClose(args)

		case "send":
			c.cmdSend(args)

		case "recv", "receive":
			c.cmdRecv(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
MODLINK Supervisor Commands:
  Registry:
    list                    - List registered devices
    add <id> <unit> <name>  - Register a device (name may contain spaces)
    remove <id>             - Remove a device
    enable <id>             - Enable polling for a device
    disable <id>            - Disable polling for a device

  Transports:
    open <serial|tcp>       - Open a transport session
    close <serial|tcp>      - Close a transport session
    send <serial|tcp> <hex> - Send raw bytes (hex, spaces allowed)
    recv <serial|tcp> [max] - Receive up to max bytes (default 256)

  General:
    status                  - Show supervisor and transport status
    help                    - Show this help
    quit                    - Exit`)
}

// cmdStatus shows the supervisor status.
func (c *console) cmdStatus() {
	out := c.rl.Stdout()
	status := c.sup.Status()

	fmt.Fprintln(out, "\nSupervisor Status")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  State:    %s\n", status.State)
	fmt.Fprintf(out, "  Run ID:   %s\n", status.RunID)
	fmt.Fprintf(out, "  Ticks:    %d\n", status.Tick)
	fmt.Fprintf(out, "  Devices:  %d/%d\n", status.Devices, c.sup.Registry().Capacity())
	c.printTransport(status.Serial, c.st.SerialPort)
	c.printTransport(status.Network, c.st.TCPAddr())
	fmt.Fprintln(out)
}

func (c *console) printTransport(ts supervisor.TransportStatus, target string) {
	out := c.rl.Stdout()

	availability := "down"
	if ts.Available {
		availability = "up"
	}
	fmt.Fprintf(out, "  %-8s  %s (%s, state %s)\n", ts.Kind.String()+":", availability, target, ts.State)
	if ts.SessionID != "" {
		fmt.Fprintf(out, "            session %s\n", ts.SessionID)
	}
	if ts.LastError != "" {
		fmt.Fprintf(out, "            last error: %s\n", ts.LastError)
	}
}

// cmdList lists the registered devices.
func (c *console) cmdList() {
	out := c.rl.Stdout()

	devices := c.sup.Registry().List()
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices registered")
		return
	}

	fmt.Fprintf(out, "\nRegistered Devices (%d):\n", len(devices))
	fmt.Fprintln(out, "-------------------------------------------")
	for _, d := range devices {
		state := "enabled"
		if !d.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "  [%d] %s (unit %d, %s, %d polls)\n", d.ID, d.Name, d.UnitAddress, state, d.Polls)
	}
	fmt.Fprintln(out)
}

// cmdAdd registers a device.
func (c *console) cmdAdd(args []string) {
	out := c.rl.Stdout()

	if len(args) < 3 {
		fmt.Fprintln(out, "Usage: add <id> <unit> <name>")
		fmt.Fprintln(out, "  Example: add 4 4 Energy Meter")
		return
	}

	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		fmt.Fprintf(out, "Invalid device id: %s\n", args[0])
		return
	}
	unit, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		fmt.Fprintf(out, "Invalid unit address: %s\n", args[1])
		return
	}
	name := strings.Join(args[2:], " ")

	if err := c.sup.Registry().Add(id, name, uint8(unit)); err != nil {
		fmt.Fprintf(out, "Add failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Added device %d (%s)\n", id, name)
}

// cmdRemove removes a device.
func (c *console) cmdRemove(args []string) {
	out := c.rl.Stdout()

	if len(args) < 1 {
		fmt.Fprintln(out, "Usage: remove <id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(out, "Invalid device id: %s\n", args[0])
		return
	}

	if err := c.sup.Registry().Remove(id); err != nil {
		fmt.Fprintf(out, "Remove failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Removed device %d\n", id)
}

// cmdSetEnabled enables or disables a device.
func (c *console) cmdSetEnabled(args []string, enabled bool) {
	out := c.rl.Stdout()

	verb := "enable"
	if !enabled {
		verb = "disable"
	}
	if len(args) < 1 {
		fmt.Fprintf(out, "Usage: %s <id>\n", verb)
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(out, "Invalid device id: %s\n", args[0])
		return
	}

	if enabled {
		err = c.sup.Registry().Enable(id)
	} else {
		err = c.sup.Registry().Disable(id)
	}
	if err != nil {
		fmt.Fprintf(out, "%s failed: %v\n", verb, err)
		return
	}
	fmt.Fprintf(out, "Device %d %sd\n", id, verb)
}

// handlerArg resolves a serial|tcp argument to a handler.
func (c *console) handlerArg(args []string) (transport.Handler, bool) {
	out := c.rl.Stdout()

	if len(args) < 1 {
		fmt.Fprintln(out, "Transport required: serial or tcp")
		return nil, false
	}
	switch strings.ToLower(args[0]) {
	case "serial":
		return c.sup.Handler(transport.KindSerial), true
	case "tcp", "network":
		return c.sup.Handler(transport.KindTCP), true
	default:
		fmt.Fprintf(out, "Unknown transport: %s (serial or tcp)\n", args[0])
		return nil, false
	}
}

// cmdOpen opens a transport session.
func (c *console) cmdOpen(args []string) {
	out := c.rl.Stdout()

	h, ok := c.handlerArg(args)
	if !ok {
		return
	}
	if err := h.Open(context.Background()); err != nil {
		fmt.Fprintf(out, "Open failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "%s open (session %s)\n", h.Kind(), h.SessionID())
}

// cmdClose closes a transport session.
func (c *console) cmdClose(args []string) {
	out := c.rl.Stdout()

	h, ok := c.handlerArg(args)
	if !ok {
		return
	}
	if err := h.Close(); err != nil {
		fmt.Fprintf(out, "Close failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "%s closed\n", h.Kind())
}

// cmdSend sends raw bytes over a transport.
func (c *console) cmdSend(args []string) {
	out := c.rl.Stdout()

	if len(args) < 2 {
		fmt.Fprintln(out, "Usage: send <serial|tcp> <hex>")
		fmt.Fprintln(out, "  Example: send tcp 000100000006010300000002")
		return
	}
	h, ok := c.handlerArg(args)
	if !ok {
		return
	}

	payload, err := hex.DecodeString(strings.ReplaceAll(strings.Join(args[1:], ""), " ", ""))
	if err != nil {
		fmt.Fprintf(out, "Invalid hex payload: %v\n", err)
		return
	}
	if len(payload) == 0 {
		fmt.Fprintln(out, "Empty payload")
		return
	}

	n, err := h.Send(payload)
	if err != nil {
		fmt.Fprintf(out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Sent %d bytes\n", n)
}

// cmdRecv receives bytes from a transport.
func (c *console) cmdRecv(args []string) {
	out := c.rl.Stdout()

	h, ok := c.handlerArg(args)
	if !ok {
		return
	}

	max := 256
	if len(args) >= 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil || parsed <= 0 {
			fmt.Fprintf(out, "Invalid max: %s\n", args[1])
			return
		}
		max = parsed
	}

	data, err := h.Receive(max)
	if err != nil {
		fmt.Fprintf(out, "Receive failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Received %d bytes: %s\n", len(data), hex.EncodeToString(data))
}
