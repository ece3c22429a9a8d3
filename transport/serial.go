package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultSerialReadTimeout bounds each Read on a serial port. A Read that
// times out returns zero bytes and no error.
const DefaultSerialReadTimeout = 300 * time.Millisecond

// SerialConfig describes a serial port. Zero values select 8 data bits, no
// parity, one stop bit and DefaultSerialReadTimeout.
type SerialConfig struct {
	PortName    string
	BaudRate    int
	DataBits    int
	Parity      serial.Parity
	StopBits    serial.StopBits
	ReadTimeout time.Duration
}

func (cfg SerialConfig) validate() error {
	if cfg.PortName == "" {
		return fmt.Errorf("%w: serial port is empty", ErrInvalidConfig)
	}
	if cfg.BaudRate <= 0 {
		return fmt.Errorf("%w: invalid serial baud rate: %d", ErrInvalidConfig, cfg.BaudRate)
	}
	if cfg.DataBits != 0 && (cfg.DataBits < 5 || cfg.DataBits > 8) {
		return fmt.Errorf("%w: invalid serial data bits: %d", ErrInvalidConfig, cfg.DataBits)
	}
	if cfg.ReadTimeout < 0 {
		return fmt.Errorf("%w: negative serial read timeout", ErrInvalidConfig)
	}

	return nil
}

func (cfg SerialConfig) mode() *serial.Mode {
	dataBits := cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}

	return &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: dataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	}
}

// OpenSerial opens and configures the serial port described by cfg.
func OpenSerial(ctx context.Context, cfg SerialConfig) (serial.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.PortName, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("transport: open serial port %q: %w", cfg.PortName, err)
	}

	timeout := cfg.ReadTimeout
	if timeout == 0 {
		timeout = DefaultSerialReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("transport: set serial read timeout: %w", err)
	}

	return port, nil
}

// ListSerialPorts returns the names of the serial ports found on the system.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list serial ports: %w", err)
	}

	return ports, nil
}

// ParseParity parses "none", "odd", "even", "mark" or "space", or their
// first letter, case insensitively. The empty string means none.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "", "n", "none":
		return serial.NoParity, nil
	case "o", "odd":
		return serial.OddParity, nil
	case "e", "even":
		return serial.EvenParity, nil
	case "m", "mark":
		return serial.MarkParity, nil
	case "s", "space":
		return serial.SpaceParity, nil
	}

	return serial.NoParity, fmt.Errorf("%w: unknown parity %q", ErrInvalidConfig, s)
}

// ParseStopBits parses "1", "1.5" or "2". The empty string means one.
func ParseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	}

	return serial.OneStopBit, fmt.Errorf("%w: unknown stop bits %q", ErrInvalidConfig, s)
}
