package transport

import (
	"context"
	"errors"
	"io"
	"net"
)

// ErrInvalidConfig is returned when a transport is configured with values it
// cannot use.
var ErrInvalidConfig = errors.New("transport: invalid config")

// Stream is a connected byte stream to one peer. net.Conn satisfies it.
type Stream interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener accepts streams from remote peers.
//
// Accept returns net.ErrClosed once the listener is closed.
type Listener interface {
	Accept(ctx context.Context) (Stream, error)
	Addr() net.Addr
	Close() error
}
