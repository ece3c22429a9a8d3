package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-serialproto/driver"
	"github.com/arloliu/go-serialproto/internal/akvs"
	"github.com/arloliu/go-serialproto/logger"
	"github.com/arloliu/go-serialproto/transport"
)

const dialTimeout = 5 * time.Second

// app carries what every command needs once the root command has run.
type app struct {
	cfg *Config
	log logger.Logger
	out io.Writer

	addr     string
	serial   string
	baud     int
	quic     bool
	timeout  time.Duration
	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "akvsctl",
		Short:        "Query and simulate AKVS appliances",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.addr, "addr", "a", "", "appliance address, overrides AKVS_ADDR")
	flags.StringVar(&a.serial, "serial", "", "serial port, overrides AKVS_SERIAL_PORT")
	flags.IntVar(&a.baud, "baud", 0, "serial baud rate, overrides AKVS_BAUD")
	flags.BoolVar(&a.quic, "quic", false, "use QUIC instead of TCP, overrides AKVS_QUIC")
	flags.DurationVarP(&a.timeout, "timeout", "t", 0, "reply timeout, overrides AKVS_TIMEOUT")
	flags.StringVar(&a.logLevel, "log-level", "", "log level, overrides AKVS_LOG_LEVEL")

	cmd.AddCommand(
		newServeCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newWatchCmd(a),
		newBatchCmd(a),
		newGatewayCmd(a),
		newPortsCmd(a),
	)

	return cmd
}

// load builds the configuration and the logger. Flags win over the environment.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := LoadConfig(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = a.addr
	}
	if flags.Changed("serial") {
		cfg.SerialPort = a.serial
	}
	if flags.Changed("baud") {
		cfg.Baud = a.baud
	}
	if flags.Changed("quic") {
		cfg.QUIC = a.quic
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	// stdout carries command output, so logs go to stderr.
	a.log = logger.NewSlogWithWriter(os.Stderr, level, false, os.Getenv("ENV") == "development")
	logger.SetDefault(a.log)

	a.cfg = cfg
	a.out = cmd.OutOrStdout()

	return nil
}

// dial opens the stream to the appliance: the serial port when one is
// configured, otherwise QUIC or TCP to the configured address.
func (a *app) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	switch {
	case a.cfg.SerialPort != "":
		parity, err := transport.ParseParity(a.cfg.Parity)
		if err != nil {
			return nil, err
		}
		stopBits, err := transport.ParseStopBits(a.cfg.StopBits)
		if err != nil {
			return nil, err
		}

		return transport.OpenSerial(ctx, transport.SerialConfig{
			PortName: a.cfg.SerialPort,
			BaudRate: a.cfg.Baud,
			Parity:   parity,
			StopBits: stopBits,
		})

	case a.cfg.QUIC:
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		return transport.DialQUIC(dialCtx, a.cfg.Addr, transport.InsecureClientTLS(), nil)

	default:
		return transport.DialTCP(ctx, a.cfg.Addr, dialTimeout)
	}
}

// openDriver dials the appliance and opens a driver over the stream.
// prologue, when not nil, is written to the stream before the driver starts.
func (a *app) openDriver(ctx context.Context, prologue []byte) (*driver.Driver[akvs.Reply], error) {
	rw, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}

	if len(prologue) > 0 {
		if _, err := rw.Write(prologue); err != nil {
			_ = rw.Close()
			return nil, fmt.Errorf("write prologue: %w", err)
		}
	}

	d, err := driver.New[akvs.Reply](rw, akvs.Parser{},
		driver.WithTerminator([]byte(akvs.Terminator)),
		driver.WithDefaultTimeout(a.cfg.Timeout),
		driver.WithLogger(a.log),
	)
	if err != nil {
		_ = rw.Close()
		return nil, err
	}

	if err := d.Open(); err != nil {
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports found on this system",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ports, err := transport.ListSerialPorts()
			if err != nil {
				return err
			}

			for _, p := range ports {
				fmt.Fprintln(a.out, p)
			}

			return nil
		},
	}
}
