package driver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"

	"github.com/arloliu/go-serialproto/correlator"
	"github.com/arloliu/go-serialproto/internal/pool"
	"github.com/arloliu/go-serialproto/internal/queue"
	"github.com/arloliu/go-serialproto/internal/task"
	"github.com/arloliu/go-serialproto/logger"
	"github.com/arloliu/go-serialproto/timing"
)

// Driver runs a correlator over an io.ReadWriteCloser.
//
// Send, Request, NextEvent and Close are safe for concurrent use.
type Driver[P any] struct {
	id      string
	cfg     *Config
	rw      io.ReadWriteCloser
	logger  logger.Logger
	state   AtomicOpState
	metrics Metrics

	tasks *task.Manager
	ops   chan func()
	done  chan struct{}

	// owned by the loop goroutine
	corr   *correlator.Correlator[P]
	minder *timing.Minder
	timer  *timing.ChanBackend

	calls   *xsync.MapOf[uint64, *call[P]]
	callSeq atomic.Uint64

	events      queue.Queue[P]
	eventSignal chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// call wraps a caller's request together with the future it resolves.
type call[P any] struct {
	key     uint64
	req     correlator.Request
	timeout time.Duration
	future  *Future[P]
}

// Bytes implements correlator.Request.
func (c *call[P]) Bytes() []byte { return c.req.Bytes() }

// Timeout implements correlator.Request.
func (c *call[P]) Timeout() time.Duration { return c.timeout }

// New creates a Driver over rw that interprets frames with parser.
// Call Open to start it.
func New[P any](rw io.ReadWriteCloser, parser correlator.Parser[P], opts ...Option) (*Driver[P], error) {
	if rw == nil {
		return nil, ErrNilStream
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	d := &Driver[P]{
		id:          id,
		cfg:         cfg,
		rw:          rw,
		logger:      cfg.GetLogger().With("driver_id", id),
		ops:         make(chan func(), cfg.LoopQueueSize()),
		done:        make(chan struct{}),
		calls:       xsync.NewMapOf[uint64, *call[P]](),
		events:      queue.NewLockFreeQueue[P](),
		eventSignal: make(chan struct{}, 1),
	}

	d.minder, d.timer = timing.NewChanMinder()
	d.corr, err = correlator.New[P](d.minder, parser, &delegate[P]{d: d},
		correlator.WithTerminator(cfg.Terminator()),
		correlator.WithMaxFrameSize(cfg.MaxFrameSize()),
		correlator.WithWriter(d.write),
		correlator.WithLogger(d.logger),
	)
	if err != nil {
		d.timer.Release()
		return nil, err
	}

	d.tasks = task.NewManager(context.Background(), d.logger)

	return d, nil
}

// ID returns the driver's instance ID, also attached to its log records.
func (d *Driver[P]) ID() string {
	return d.id
}

// State returns the lifecycle state.
func (d *Driver[P]) State() OpState {
	return d.state.Get()
}

// Metrics returns the driver's counters.
func (d *Driver[P]) Metrics() *Metrics {
	return &d.metrics
}

// Done returns a channel that is closed once the driver has closed.
func (d *Driver[P]) Done() <-chan struct{} {
	return d.done
}

// Open starts the loop and reader goroutines. A driver can be opened once.
func (d *Driver[P]) Open() error {
	if !d.state.ToOpening() {
		return ErrAlreadyOpen
	}

	if err := d.tasks.StartBody("loop", d.loop, nil); err != nil {
		d.state.Set(ClosedState)
		return err
	}

	if err := d.tasks.StartReader("reader", d.cfg.ReadBufferSize(), d.read, nil); err != nil {
		_ = d.Close()
		return err
	}

	// the reader may already have hit a dead stream and started Close
	if !d.state.ToOpened() {
		return ErrClosed
	}
	d.logger.Debug("driver: opened")

	return nil
}

// Send submits req and returns its Future. ctx bounds only the hand-off to
// the loop goroutine; it does not retire the request.
func (d *Driver[P]) Send(ctx context.Context, req correlator.Request) (*Future[P], error) {
	if req == nil {
		return nil, correlator.ErrNilRequest
	}

	switch d.state.Get() {
	case OpenedState:
	case OpeningState:
		return nil, ErrNotOpen
	case ClosingState:
		return nil, ErrClosed
	default:
		if d.isDone() {
			return nil, ErrClosed
		}

		return nil, ErrNotOpen
	}

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = d.cfg.DefaultTimeout()
	}

	c := &call[P]{
		key:     d.callSeq.Add(1),
		req:     req,
		timeout: timeout,
		future:  newFuture[P](req),
	}
	d.calls.Store(c.key, c)
	d.metrics.incRequestSendCount()

	if err := d.post(ctx, func() { d.submit(c) }); err != nil {
		d.calls.Delete(c.key)
		d.metrics.decRequestSendCount()

		return nil, err
	}

	// Close may have swept the registry before the call was stored.
	if d.isDone() {
		d.calls.Delete(c.key)
		var zero P
		if c.future.complete(zero, ErrClosed) {
			d.metrics.incRequestErrCount()
		}
	}

	return c.future, nil
}

// Request sends req and waits for its outcome.
func (d *Driver[P]) Request(ctx context.Context, req correlator.Request) (P, error) {
	f, err := d.Send(ctx, req)
	if err != nil {
		var zero P
		return zero, err
	}

	return f.Wait(ctx)
}

// NextEvent returns the oldest unsolicited event, waiting until one arrives,
// ctx is done or the driver closes. Events queued before close are still
// returned.
func (d *Driver[P]) NextEvent(ctx context.Context) (P, error) {
	for {
		if p, ok := d.events.Dequeue(); ok {
			if !d.events.IsEmpty() {
				d.signalEvent()
			}

			return p, nil
		}

		select {
		case <-d.eventSignal:
		case <-ctx.Done():
			var zero P
			return zero, ctx.Err()
		case <-d.done:
			if p, ok := d.events.Dequeue(); ok {
				return p, nil
			}

			var zero P
			return zero, ErrClosed
		}
	}
}

// EventCount returns the number of events waiting to be read.
func (d *Driver[P]) EventCount() int {
	return d.events.Length()
}

// Close stops the goroutines, closes the stream and fails every outstanding
// future with ErrClosed. It is safe to call more than once.
func (d *Driver[P]) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.shutdown()
	})

	return d.closeErr
}

func (d *Driver[P]) shutdown() error {
	if !d.state.ToClosing() {
		d.state.Set(ClosingState)
	}
	d.logger.Debug("driver: closing")

	var err error

	d.tasks.Stop()
	if cerr := d.rw.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && !errors.Is(cerr, io.ErrClosedPipe) {
		err = multierr.Append(err, cerr)
	}

	waited := make(chan struct{})
	go func() {
		d.tasks.Wait()
		close(waited)
	}()

	timer := pool.GetTimer(d.cfg.CloseTimeout())
	select {
	case <-waited:
		d.timer.Release()
	case <-timer.C:
		err = multierr.Append(err, ErrCloseTimeout)
	}
	pool.PutTimer(timer)

	close(d.done)

	d.calls.Range(func(key uint64, c *call[P]) bool {
		d.calls.Delete(key)
		var zero P
		if c.future.complete(zero, ErrClosed) {
			d.metrics.incRequestErrCount()
		}

		return true
	})

	d.state.Set(ClosedState)
	d.logger.Debug("driver: closed")

	return err
}

func (d *Driver[P]) isDone() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// post hands fn to the loop goroutine.
func (d *Driver[P]) post(ctx context.Context, fn func()) error {
	select {
	case d.ops <- fn:
		return nil
	default:
	}

	timer := pool.GetTimer(d.cfg.SendTimeout())
	defer pool.PutTimer(timer)

	select {
	case d.ops <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// loop is the only goroutine that touches the correlator and the minder.
func (d *Driver[P]) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-d.ops:
			op()
		case <-d.timer.C():
			d.minder.Run()
		}
	}
}

// read is one iteration of the reader task.
func (d *Driver[P]) read(buf []byte) bool {
	n, err := d.rw.Read(buf)
	if n > 0 {
		d.metrics.addBytesRecv(n)
		data := bytes.Clone(buf[:n])

		select {
		case d.ops <- func() { d.receive(data) }:
		case <-d.tasks.Context().Done():
			return false
		}
	}

	if err != nil {
		if d.state.IsOpened() || d.state.IsOpening() {
			if errors.Is(err, io.EOF) {
				d.logger.Info("driver: stream closed by peer")
			} else {
				d.logger.Error("driver: read failed", "error", err)
			}
			go d.Close()
		}

		return false
	}

	return true
}

func (d *Driver[P]) submit(c *call[P]) {
	// Close may have failed the future while this op was queued.
	if _, ok := d.calls.Load(c.key); !ok {
		return
	}

	id, err := d.corr.Send(c, nil)
	if err != nil {
		d.calls.Delete(c.key)
		var zero P
		c.future.complete(zero, err)
		d.metrics.incRequestErrCount()

		return
	}
	c.future.setID(id)
}

func (d *Driver[P]) receive(data []byte) {
	err := d.corr.ReceiveData(data)
	for err != nil {
		d.metrics.incFramingErrCount()

		if d.cfg.StopOnFramingError() {
			d.logger.Error("driver: framing error, closing", "error", err)
			go d.Close()

			return
		}

		d.logger.Warn("driver: framing error, frame skipped", "error", err)
		err = d.corr.ReceiveData(nil)
	}
}

// write is the correlator's WriteFunc. It runs on the loop goroutine.
func (d *Driver[P]) write(p []byte) {
	n, err := d.rw.Write(p)
	d.metrics.addBytesSend(n)

	if err != nil {
		d.metrics.incWriteErrCount()
		if d.state.IsOpened() {
			d.logger.Error("driver: write failed, closing", "error", err)
			go d.Close()
		}
	}
}

func (d *Driver[P]) signalEvent() {
	select {
	case d.eventSignal <- struct{}{}:
	default:
	}
}

// delegate receives the correlator's outcomes on the loop goroutine.
type delegate[P any] struct {
	d *Driver[P]
}

func (dg *delegate[P]) EventReceived(payload P) {
	d := dg.d
	d.metrics.incEventRecvCount()
	d.events.Enqueue(payload)
	d.signalEvent()
}

func (dg *delegate[P]) RequestCompleted(id correlator.RequestID, req correlator.Request, payload P) {
	d := dg.d
	c, ok := req.(*call[P])
	if !ok {
		d.logger.Warn("driver: completion for a foreign request", "id", id)
		return
	}

	d.calls.Delete(c.key)
	if c.future.complete(payload, nil) {
		d.metrics.incRequestCompleteCount()
	}
}

func (dg *delegate[P]) RequestTimedOut(id correlator.RequestID, req correlator.Request) {
	d := dg.d
	c, ok := req.(*call[P])
	if !ok {
		d.logger.Warn("driver: timeout for a foreign request", "id", id)
		return
	}

	d.calls.Delete(c.key)
	var zero P
	if c.future.complete(zero, &TimeoutError{ID: id, Request: c.req, Timeout: c.timeout}) {
		d.metrics.incRequestTimeoutCount()
	}
}
