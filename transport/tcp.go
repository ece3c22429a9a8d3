package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	reuseport "github.com/kavu/go_reuseport"
)

const tcpKeepAlive = 30 * time.Second

// DialTCP connects to addr. A positive timeout bounds the connection attempt
// in addition to ctx.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidConfig)
	}

	dialer := net.Dialer{Timeout: timeout, KeepAlive: tcpKeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}

	return conn, nil
}

// TCPListener is a Listener for TCP connections.
type TCPListener struct {
	ln net.Listener
}

var _ Listener = (*TCPListener)(nil)

// ListenTCP listens on addr. With reusePort the socket is opened with
// SO_REUSEPORT so several processes can share the address.
func ListenTCP(addr string, reusePort bool) (*TCPListener, error) {
	var (
		ln  net.Listener
		err error
	)
	if reusePort {
		ln, err = reuseport.Listen("tcp", addr)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp %s: %w", addr, err)
	}

	return &TCPListener{ln: ln}, nil
}

// Accept implements Listener. The context is not consulted once Accept has
// started waiting; Close unblocks it.
func (l *TCPListener) Accept(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return l.ln.Accept()
}

// Addr implements Listener.
func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close implements Listener.
func (l *TCPListener) Close() error {
	return l.ln.Close()
}
