package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQUIC_DialAndListen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverTLS, err := SelfSignedTLS(time.Hour)
	require.NoError(t, err)

	l, err := ListenQUIC("127.0.0.1:0", serverTLS, nil)
	require.NoError(t, err)
	defer l.Close()
	echo(t, l)

	s, err := DialQUIC(ctx, l.Addr().String(), InsecureClientTLS(), nil)
	require.NoError(t, err)
	assert.Equal(t, l.Addr().String(), s.RemoteAddr().String())

	roundTrip(t, s, "GET A\r")
	roundTrip(t, s, "SET B Q\r")

	require.NoError(t, s.Close())
}

func TestQUIC_ListenerClose(t *testing.T) {
	serverTLS, err := SelfSignedTLS(time.Hour)
	require.NoError(t, err)

	l, err := ListenQUIC("127.0.0.1:0", serverTLS, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Accept(context.Background())
	require.Error(t, err)
}

func TestQUIC_ConfigErrors(t *testing.T) {
	_, err := ListenQUIC("127.0.0.1:0", nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ListenQUIC("127.0.0.1:0", InsecureClientTLS(), nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = DialQUIC(context.Background(), "127.0.0.1:1", nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSelfSignedTLS(t *testing.T) {
	cfg, err := SelfSignedTLS(time.Hour)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, []string{ALPN}, cfg.NextProtos)
}
