// Command akvsctl talks to an AKVS appliance over a serial port, TCP or QUIC,
// and can run a simulated appliance for testing.
//
// Connection settings come from the environment (AKVS_ADDR, AKVS_SERIAL_PORT,
// AKVS_BAUD, AKVS_PARITY, AKVS_STOP_BITS, AKVS_QUIC, AKVS_TIMEOUT,
// AKVS_LOG_LEVEL), optionally loaded from .env.local, and can be overridden
// by flags.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(1)
	}
}
