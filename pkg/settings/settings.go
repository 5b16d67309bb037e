// Package settings holds the immutable configuration bundle shared by the
// registry, the transport handlers, and the supervisor loop.
//
// A Settings value is constructed once at startup (from defaults, a YAML
// file, or both) and passed by value; nothing mutates it afterwards.
package settings

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultSerialPort = "/dev/ttyUSB0"
	DefaultBaudRate   = 9600
	DefaultTCPHost    = "127.0.0.1"
	DefaultTCPPort    = 502
	DefaultTimeoutMs  = 5000
)

// Settings is the immutable configuration bundle.
type Settings struct {
	// SerialPort is the serial device path (e.g. /dev/ttyUSB0, COM3).
	SerialPort string `yaml:"serial_port"`

	// BaudRate is the serial line speed. Framing is fixed 8N1.
	BaudRate int `yaml:"baud_rate"`

	// TCPHost is the Modbus TCP peer host.
	TCPHost string `yaml:"tcp_host"`

	// TCPPort is the Modbus TCP peer port.
	TCPPort int `yaml:"tcp_port"`

	// TimeoutMs bounds every blocking transport operation, in milliseconds.
	TimeoutMs int `yaml:"timeout_ms"`
}

// Default returns the default settings.
func Default() Settings {
	return Settings{
		SerialPort: DefaultSerialPort,
		BaudRate:   DefaultBaudRate,
		TCPHost:    DefaultTCPHost,
		TCPPort:    DefaultTCPPort,
		TimeoutMs:  DefaultTimeoutMs,
	}
}

// Timeout returns the configured timeout as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// TCPAddr returns the network peer as a dialable "host:port" address.
func (s Settings) TCPAddr() string {
	return net.JoinHostPort(s.TCPHost, strconv.Itoa(s.TCPPort))
}

// Validate checks that every field is usable.
func (s Settings) Validate() error {
	if s.SerialPort == "" {
		return fmt.Errorf("settings: serial_port must not be empty")
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("settings: baud_rate must be positive, got %d", s.BaudRate)
	}
	if s.TCPHost == "" {
		return fmt.Errorf("settings: tcp_host must not be empty")
	}
	if s.TCPPort < 1 || s.TCPPort > 65535 {
		return fmt.Errorf("settings: tcp_port must be in 1..65535, got %d", s.TCPPort)
	}
	if s.TimeoutMs <= 0 {
		return fmt.Errorf("settings: timeout_ms must be positive, got %d", s.TimeoutMs)
	}
	return nil
}

// Parse parses YAML settings. Fields absent from the document keep their
// default values.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and parses a settings file.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}
