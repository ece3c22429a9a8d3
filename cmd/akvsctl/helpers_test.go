package main

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-serialproto/driver"
	"github.com/arloliu/go-serialproto/internal/akvs"
	"github.com/arloliu/go-serialproto/logger"
	"github.com/arloliu/go-serialproto/transport"
)

var envKeys = []string{
	"AKVS_ADDR", "AKVS_SERIAL_PORT", "AKVS_BAUD", "AKVS_PARITY",
	"AKVS_STOP_BITS", "AKVS_QUIC", "AKVS_TIMEOUT", "AKVS_LOG_LEVEL",
}

// clearEnv unsets every AKVS variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func startAppliance(t *testing.T, opts akvs.ServerOptions) *akvs.Server {
	t.Helper()

	opts.Addr = "127.0.0.1:0"
	opts.Log = logger.NewPermissiveMockLogger()
	srv := akvs.NewServer(opts)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Close() })

	return srv
}

func openTestDriver(t *testing.T, srv *akvs.Server) *driver.Driver[akvs.Reply] {
	t.Helper()

	conn, err := transport.DialTCP(context.Background(), srv.Addr().String(), time.Second)
	require.NoError(t, err)

	d, err := driver.New[akvs.Reply](conn, akvs.Parser{},
		driver.WithTerminator([]byte(akvs.Terminator)),
		driver.WithLogger(logger.NewPermissiveMockLogger()),
	)
	require.NoError(t, err)
	require.NoError(t, d.Open())
	t.Cleanup(func() { _ = d.Close() })

	return d
}

// runCLI executes akvsctl with args against addr and returns stdout.
func runCLI(t *testing.T, addr string, stdin string, args ...string) (string, error) {
	t.Helper()
	clearEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(append([]string{"--addr", addr, "--log-level", "error"}, args...))

	err := cmd.ExecuteContext(ctx)

	return out.String(), err
}
