package correlator

import (
	"bytes"
	"time"

	"go.uber.org/multierr"

	"github.com/arloliu/go-serialproto/internal/queue"
	"github.com/arloliu/go-serialproto/logger"
	"github.com/arloliu/go-serialproto/timing"
)

// Request is an outbound message awaiting at most one terminal outcome.
type Request interface {
	// Bytes returns the serialized request written to the transport.
	Bytes() []byte
	// Timeout returns how long to wait for the reply. Zero or negative
	// means the request waits until a reply arrives.
	Timeout() time.Duration
}

// WriteFunc transmits a serialized request. It must not block for long;
// write errors are the caller's concern.
type WriteFunc func(data []byte)

// Inflight describes the request currently awaiting a reply.
type Inflight struct {
	ID      RequestID
	Request Request
}

// Parser converts a frame into a payload and decides whether it answers the
// waiting request.
type Parser[P any] interface {
	// Interpret parses frame. waiting is nil when no request is in flight.
	// It returns the waiting request's ID when the frame is its reply, or
	// NoRequest for an unsolicited event. An error reports a frame that
	// cannot be interpreted.
	Interpret(frame []byte, waiting *Inflight) (P, RequestID, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc[P any] func(frame []byte, waiting *Inflight) (P, RequestID, error)

// Interpret implements Parser.
func (f ParserFunc[P]) Interpret(frame []byte, waiting *Inflight) (P, RequestID, error) {
	return f(frame, waiting)
}

// Delegate receives the outcomes produced by a Correlator.
//
// Callbacks run synchronously on the goroutine that called ReceiveData or
// ran the minder. They may call Send; such requests queue behind any request
// already pending.
type Delegate[P any] interface {
	// EventReceived is called for each frame that matched no request.
	EventReceived(payload P)
	// RequestCompleted is called once when the reply to a request arrives.
	RequestCompleted(id RequestID, req Request, payload P)
	// RequestTimedOut is called once when a request's timeout elapses
	// before its reply.
	RequestTimedOut(id RequestID, req Request)
}

// DelegateFuncs implements Delegate with optional function fields.
// Nil fields ignore the corresponding outcome.
type DelegateFuncs[P any] struct {
	OnEvent     func(payload P)
	OnCompleted func(id RequestID, req Request, payload P)
	OnTimedOut  func(id RequestID, req Request)
}

// EventReceived implements Delegate.
func (d DelegateFuncs[P]) EventReceived(payload P) {
	if d.OnEvent != nil {
		d.OnEvent(payload)
	}
}

// RequestCompleted implements Delegate.
func (d DelegateFuncs[P]) RequestCompleted(id RequestID, req Request, payload P) {
	if d.OnCompleted != nil {
		d.OnCompleted(id, req, payload)
	}
}

// RequestTimedOut implements Delegate.
func (d DelegateFuncs[P]) RequestTimedOut(id RequestID, req Request) {
	if d.OnTimedOut != nil {
		d.OnTimedOut(id, req)
	}
}

// Scheduler schedules and cancels timeout callbacks. *timing.Minder
// satisfies it.
type Scheduler interface {
	NotifyAfter(delay time.Duration, fn func()) *timing.Handle
	Remove(h *timing.Handle)
}

var _ Scheduler = (*timing.Minder)(nil)

// State is the state of a Correlator.
type State int

const (
	// StateIdle means no request is in flight.
	StateIdle State = iota
	// StateWaiting means one request was written and awaits its reply.
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

type entry struct {
	id    RequestID
	req   Request
	write WriteFunc
	timer *timing.Handle
}

// Correlator matches replies to requests on a stream that allows one
// outstanding request at a time.
//
// Send writes a request immediately when nothing is in flight and queues it
// otherwise. Queued requests are written in send order, each one after its
// predecessor completes or times out. Exactly one of RequestCompleted and
// RequestTimedOut is delivered for every request that was written.
//
// Correlator is not safe for concurrent use.
type Correlator[P any] struct {
	scheduler Scheduler
	parser    Parser[P]
	delegate  Delegate[P]
	frames    *FrameBuffer
	write     WriteFunc
	logger    logger.Logger
	ids       *idGenerator

	waiting    *entry
	pending    queue.Queue[*entry]
	pendingIDs map[RequestID]*entry

	// retiring is set while a completion or timeout callback runs, so that
	// requests sent from the callback queue behind the pending ones.
	retiring bool
}

// New creates a Correlator that schedules timeouts on scheduler, interprets
// frames with parser and reports outcomes to delegate.
func New[P any](scheduler Scheduler, parser Parser[P], delegate Delegate[P], opts ...Option) (*Correlator[P], error) {
	if scheduler == nil {
		return nil, ErrNilScheduler
	}
	if parser == nil {
		return nil, ErrNilParser
	}
	if delegate == nil {
		delegate = DelegateFuncs[P]{}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Correlator[P]{
		scheduler:  scheduler,
		parser:     parser,
		delegate:   delegate,
		frames:     NewFrameBuffer(cfg.terminator, cfg.maxFrameSize),
		write:      cfg.write,
		logger:     cfg.logger,
		ids:        newIDGenerator(),
		pending:    queue.NewSliceQueue[*entry](8),
		pendingIDs: make(map[RequestID]*entry),
	}, nil
}

// Send submits req. When no request is in flight, the request's timeout is
// scheduled and write is called with its bytes before Send returns;
// otherwise the request is queued. A nil write selects the writer set with
// WithWriter. A request carrying the terminator before its end is rejected
// with ErrEmbeddedTerminator.
//
// Send never reports timeouts; those arrive through RequestTimedOut.
func (c *Correlator[P]) Send(req Request, write WriteFunc) (RequestID, error) {
	if req == nil {
		return NoRequest, ErrNilRequest
	}
	if write == nil {
		write = c.write
	}
	if write == nil {
		return NoRequest, ErrNoWriter
	}
	if embedsTerminator(req.Bytes(), c.frames.Terminator()) {
		return NoRequest, ErrEmbeddedTerminator
	}

	e := &entry{id: c.ids.next(), req: req, write: write}

	if c.waiting != nil || c.retiring {
		c.pending.Enqueue(e)
		c.pendingIDs[e.id] = e
		c.logger.Debug("correlator: request queued", "id", e.id, "pending", c.pending.Length())

		return e.id, nil
	}

	c.writeEntry(e)

	return e.id, nil
}

// embedsTerminator reports whether term occurs in p anywhere but as its suffix.
func embedsTerminator(p, term []byte) bool {
	idx := bytes.Index(p, term)

	return idx >= 0 && idx != len(p)-len(term)
}

// ReceiveData feeds raw bytes from the transport and processes every frame
// they complete, in arrival order.
//
// A frame the parser rejects stops processing and is returned as a
// *FramingError. Frames after it stay buffered; calling ReceiveData again,
// with nil data if nothing new arrived, resumes with them.
func (c *Correlator[P]) ReceiveData(data []byte) error {
	var errs error
	if err := c.frames.Write(data); err != nil {
		errs = &FramingError{Err: err}
	}

	for {
		frame, ok := c.frames.Next()
		if !ok {
			return errs
		}

		if err := c.processFrame(frame); err != nil {
			return multierr.Append(errs, err)
		}
	}
}

// State returns StateWaiting while a request is in flight.
func (c *Correlator[P]) State() State {
	if c.waiting != nil {
		return StateWaiting
	}

	return StateIdle
}

// Waiting returns the ID of the request in flight.
func (c *Correlator[P]) Waiting() (RequestID, bool) {
	if c.waiting == nil {
		return NoRequest, false
	}

	return c.waiting.id, true
}

// PendingLen returns the number of queued requests not yet written.
func (c *Correlator[P]) PendingLen() int {
	return c.pending.Length()
}

// IsPending reports whether id is queued and not yet written.
func (c *Correlator[P]) IsPending(id RequestID) bool {
	_, ok := c.pendingIDs[id]
	return ok
}

// Buffered returns the number of received bytes not yet processed.
func (c *Correlator[P]) Buffered() int {
	return c.frames.Buffered()
}

func (c *Correlator[P]) processFrame(frame []byte) error {
	var waiting *Inflight
	if c.waiting != nil {
		waiting = &Inflight{ID: c.waiting.id, Request: c.waiting.req}
	}

	payload, matched, err := c.parser.Interpret(frame, waiting)
	if err != nil {
		return &FramingError{Frame: frame, Err: err}
	}

	switch {
	case matched == NoRequest:
		c.delegate.EventReceived(payload)
	case c.waiting != nil && matched == c.waiting.id:
		c.completed(payload)
	default:
		c.logger.Warn("correlator: reply for a request that is not waiting, dropped",
			"id", matched, "frame", string(frame))
	}

	return nil
}

// writeEntry makes e the waiting request and writes it. The state is updated
// before writing so a writer that feeds its reply back synchronously finds e
// waiting.
func (c *Correlator[P]) writeEntry(e *entry) {
	if timeout := e.req.Timeout(); timeout > 0 {
		id := e.id
		e.timer = c.scheduler.NotifyAfter(timeout, func() { c.timedOut(id) })
	}

	c.waiting = e
	c.logger.Debug("correlator: request written", "id", e.id, "timeout", e.req.Timeout())
	e.write(e.req.Bytes())
}

func (c *Correlator[P]) completed(payload P) {
	e := c.waiting
	if e.timer != nil {
		c.scheduler.Remove(e.timer)
		e.timer = nil
	}
	c.waiting = nil

	c.retire(func() { c.delegate.RequestCompleted(e.id, e.req, payload) })
}

func (c *Correlator[P]) timedOut(id RequestID) {
	if c.waiting == nil || c.waiting.id != id {
		c.logger.Warn("correlator: timeout for a request that is not waiting, ignored", "id", id)
		return
	}

	e := c.waiting
	e.timer = nil
	c.waiting = nil
	c.logger.Debug("correlator: request timed out", "id", id)

	c.retire(func() { c.delegate.RequestTimedOut(e.id, e.req) })
}

// retire runs the outcome callback of the request just removed from waiting,
// then writes the next pending request.
func (c *Correlator[P]) retire(notify func()) {
	c.retiring = true
	func() {
		defer func() { c.retiring = false }()
		notify()
	}()

	c.advance()
}

func (c *Correlator[P]) advance() {
	if c.waiting != nil {
		return
	}

	e, ok := c.pending.Dequeue()
	if !ok {
		return
	}
	delete(c.pendingIDs, e.id)

	c.writeEntry(e)
}
