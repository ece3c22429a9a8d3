package akvs

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/arloliu/go-serialproto/internal/pool"
	"github.com/arloliu/go-serialproto/logger"
	"github.com/arloliu/go-serialproto/transport"
)

// BroadcastCommand is the line a client sends to request a NOW broadcast.
const BroadcastCommand = "b"

// ServerOptions configures a Server.
type ServerOptions struct {
	// Addr is the listen address, for example "127.0.0.1:7700".
	Addr string
	// ReplyDelay delays every reply to emulate device latency.
	ReplyDelay time.Duration
	// BroadcastInterval sends NOW to every client periodically when positive.
	BroadcastInterval time.Duration
	// ReusePort listens with SO_REUSEPORT. TCP only.
	ReusePort bool
	// TLSConfig switches the server to QUIC when set.
	TLSConfig *tls.Config
	// Simulator is the appliance served; a fresh one is used when nil.
	Simulator *Simulator
	Log       logger.Logger
}

// Server exposes a Simulator over TCP. Each line received is fed to the
// simulator and its reply written back; the line "b" triggers a broadcast
// to the sender.
type Server struct {
	opts     ServerOptions
	sim      *Simulator
	log      logger.Logger
	listener transport.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[*serverConn]struct{}
}

// NewServer creates a Server. Call Start to begin listening.
func NewServer(opts ServerOptions) *Server {
	sim := opts.Simulator
	if sim == nil {
		sim = NewSimulator()
	}

	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}

	return &Server{
		opts:  opts,
		sim:   sim,
		log:   log.With("component", "akvs-server"),
		conns: make(map[*serverConn]struct{}),
	}
}

// Simulator returns the served appliance.
func (s *Server) Simulator() *Simulator {
	return s.sim
}

// Start listens on the configured address and serves clients until ctx is
// canceled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	var (
		listener transport.Listener
		err      error
	)
	if s.opts.TLSConfig != nil {
		listener, err = transport.ListenQUIC(s.opts.Addr, s.opts.TLSConfig, nil)
	} else {
		listener, err = transport.ListenTCP(s.opts.Addr, s.opts.ReusePort)
	}
	if err != nil {
		return err
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	if s.opts.BroadcastInterval > 0 {
		s.wg.Add(1)
		go s.broadcastLoop(ctx)
	}

	s.log.Info("akvs: server listening", "addr", listener.Addr().String())

	return nil
}

// Addr returns the listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Broadcast sends the NOW message to every connected client.
func (s *Server) Broadcast() {
	msg := s.sim.Broadcast()

	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.write(msg); err != nil {
			s.log.Debug("akvs: broadcast failed", "remote", c.remote, "error", err)
		}
	}
}

// Close stops listening, disconnects every client and waits for the
// serving goroutines to exit.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.listener != nil {
		if lerr := s.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
			err = multierr.Append(err, lerr)
		}
	}

	s.mu.Lock()
	for c := range s.conns {
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	return err
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
				s.log.Error("akvs: accept failed", "error", err)
			}

			return
		}

		c := &serverConn{conn: conn, remote: conn.RemoteAddr().String()}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(ctx, c)
	}
}

func (s *Server) serve(ctx context.Context, c *serverConn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.conn.Close()
	}()

	s.log.Debug("akvs: client connected", "remote", c.remote)

	r := bufio.NewReader(c.conn)
	for {
		line, err := r.ReadBytes(Terminator[0])
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				s.log.Debug("akvs: read failed", "remote", c.remote, "error", err)
			}

			return
		}

		var reply []byte
		if string(line) == BroadcastCommand+Terminator {
			reply = s.sim.Broadcast()
		} else {
			reply = s.sim.Feed(line)
			if !s.sleep(ctx, s.opts.ReplyDelay) {
				return
			}
		}

		if err := c.write(reply); err != nil {
			s.log.Debug("akvs: write failed", "remote", c.remote, "error", err)
			return
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Broadcast()
		}
	}
}

func (s *Server) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	t := pool.GetTimer(d)
	defer pool.PutTimer(t)

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type serverConn struct {
	conn   transport.Stream
	remote string
	mu     sync.Mutex
}

func (c *serverConn) write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.conn.Write(p)

	return err
}
