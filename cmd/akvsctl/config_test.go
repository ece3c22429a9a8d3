package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Addr:     "127.0.0.1:7700",
		Baud:     9600,
		Parity:   "none",
		StopBits: "1",
		Timeout:  100 * time.Millisecond,
		LogLevel: "info",
	}, cfg)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AKVS_ADDR", "10.0.0.5:7700")
	t.Setenv("AKVS_SERIAL_PORT", "/dev/ttyS1")
	t.Setenv("AKVS_BAUD", "19200")
	t.Setenv("AKVS_PARITY", "even")
	t.Setenv("AKVS_STOP_BITS", "2")
	t.Setenv("AKVS_QUIC", "true")
	t.Setenv("AKVS_TIMEOUT", "250ms")
	t.Setenv("AKVS_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Addr:       "10.0.0.5:7700",
		SerialPort: "/dev/ttyS1",
		Baud:       19200,
		Parity:     "even",
		StopBits:   "2",
		QUIC:       true,
		Timeout:    250 * time.Millisecond,
		LogLevel:   "debug",
	}, cfg)
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("AKVS_TIMEOUT", "soon")

	_, err := LoadConfig(context.Background())
	require.Error(t, err)
}
