package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-serialproto/correlator"
	"github.com/arloliu/go-serialproto/internal/pool"
)

// Future is the pending outcome of one request. It is completed exactly once,
// with the reply payload, a *TimeoutError, or ErrClosed.
type Future[P any] struct {
	ch  chan struct{}
	req correlator.Request
	id  atomic.Uint64

	once    sync.Once
	mu      sync.Mutex
	payload P
	err     error
}

func newFuture[P any](req correlator.Request) *Future[P] {
	return &Future[P]{ch: make(chan struct{}), req: req}
}

// complete sets the outcome. Later calls are ignored.
func (f *Future[P]) complete(payload P, err error) bool {
	done := false
	f.once.Do(func() {
		f.mu.Lock()
		f.payload = payload
		f.err = err
		f.mu.Unlock()
		close(f.ch)
		done = true
	})

	return done
}

func (f *Future[P]) setID(id correlator.RequestID) {
	f.id.Store(uint64(id))
}

// Request returns the request this future belongs to.
func (f *Future[P]) Request() correlator.Request {
	return f.req
}

// ID returns the request ID assigned by the correlator, or
// correlator.NoRequest until the loop goroutine has accepted the request.
func (f *Future[P]) ID() correlator.RequestID {
	return correlator.RequestID(f.id.Load())
}

// Done returns a channel that is closed when the outcome is known.
func (f *Future[P]) Done() <-chan struct{} {
	return f.ch
}

// Wait blocks until the outcome is known or ctx is done. Canceling ctx only
// stops waiting; the request stays queued or in flight.
func (f *Future[P]) Wait(ctx context.Context) (P, error) {
	select {
	case <-f.ch:
		return f.outcome()
	case <-ctx.Done():
		var zero P
		return zero, ctx.Err()
	}
}

// WaitTimeout is Wait bounded by d. It returns context.DeadlineExceeded
// when d elapses first.
func (f *Future[P]) WaitTimeout(d time.Duration) (P, error) {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-f.ch:
		return f.outcome()
	case <-timer.C:
		var zero P
		return zero, context.DeadlineExceeded
	}
}

// Result returns the outcome without blocking. ok is false while the
// request is unresolved.
func (f *Future[P]) Result() (payload P, ok bool, err error) {
	select {
	case <-f.ch:
		payload, err = f.outcome()
		return payload, true, err
	default:
		return payload, false, nil
	}
}

// OnDone registers cb to run on its own goroutine once the outcome is known.
func (f *Future[P]) OnDone(cb func(P, error)) {
	go func() {
		<-f.ch
		cb(f.outcome())
	}()
}

func (f *Future[P]) outcome() (P, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.payload, f.err
}
