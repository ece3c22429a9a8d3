package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"
)

// ALPN is the application protocol negotiated on QUIC connections.
const ALPN = "serialproto"

const (
	quicCodeNoError quic.ApplicationErrorCode = 0
	quicCodeRefused quic.ApplicationErrorCode = 1
)

// QUICStream is the single bidirectional stream of a QUIC connection.
// Closing it closes the connection.
type QUICStream struct {
	quic.Stream
	conn quic.Connection
}

var _ Stream = (*QUICStream)(nil)

// RemoteAddr returns the peer's address.
func (s *QUICStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close closes the stream and the connection it belongs to.
func (s *QUICStream) Close() error {
	err := s.Stream.Close()
	if cerr := s.conn.CloseWithError(quicCodeNoError, "closed"); cerr != nil {
		err = multierr.Append(err, cerr)
	}

	return err
}

// DialQUIC connects to addr and opens the stream requests travel on.
//
// The peer's listener only sees the stream once the first byte has been
// written on it.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config, conf *quic.Config) (*QUICStream, error) {
	if tlsConf == nil {
		return nil, fmt.Errorf("%w: QUIC requires a TLS config", ErrInvalidConfig)
	}
	tlsConf = withALPN(tlsConf)

	conn, err := quic.DialAddr(ctx, addr, tlsConf, conf)
	if err != nil {
		return nil, fmt.Errorf("transport: dial quic %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(quicCodeRefused, "open stream failed")
		return nil, fmt.Errorf("transport: open quic stream: %w", err)
	}

	return &QUICStream{Stream: stream, conn: conn}, nil
}

// QUICListener is a Listener for QUIC connections. Each accepted connection
// yields its first stream.
type QUICListener struct {
	ln      *quic.Listener
	streams chan *QUICStream

	ctx    context.Context //nolint:containedctx // lifetime of the accept goroutines
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Listener = (*QUICListener)(nil)

// ListenQUIC listens for QUIC connections on addr.
func ListenQUIC(addr string, tlsConf *tls.Config, conf *quic.Config) (*QUICListener, error) {
	if tlsConf == nil || (len(tlsConf.Certificates) == 0 && tlsConf.GetCertificate == nil) {
		return nil, fmt.Errorf("%w: QUIC listener requires a certificate", ErrInvalidConfig)
	}

	ln, err := quic.ListenAddr(addr, withALPN(tlsConf), conf)
	if err != nil {
		return nil, fmt.Errorf("transport: listen quic %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &QUICListener{
		ln:      ln,
		streams: make(chan *QUICStream),
		ctx:     ctx,
		cancel:  cancel,
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// Accept implements Listener.
func (l *QUICListener) Accept(ctx context.Context) (Stream, error) {
	select {
	case s := <-l.streams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

// Addr implements Listener.
func (l *QUICListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close implements Listener. Streams already accepted stay open.
func (l *QUICListener) Close() error {
	l.cancel()
	err := l.ln.Close()
	l.wg.Wait()

	if errors.Is(err, quic.ErrServerClosed) {
		return nil
	}

	return err
}

func (l *QUICListener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept(l.ctx)
		if err != nil {
			return
		}

		l.wg.Add(1)
		go l.acceptStream(conn)
	}
}

func (l *QUICListener) acceptStream(conn quic.Connection) {
	defer l.wg.Done()

	stream, err := conn.AcceptStream(l.ctx)
	if err != nil {
		_ = conn.CloseWithError(quicCodeRefused, "no stream")
		return
	}

	select {
	case l.streams <- &QUICStream{Stream: stream, conn: conn}:
	case <-l.ctx.Done():
		_ = conn.CloseWithError(quicCodeRefused, "listener closed")
	}
}

// withALPN returns a copy of tlsConf that negotiates ALPN when no protocol
// is configured.
func withALPN(tlsConf *tls.Config) *tls.Config {
	if len(tlsConf.NextProtos) > 0 {
		return tlsConf
	}

	c := tlsConf.Clone()
	c.NextProtos = []string{ALPN}

	return c
}
