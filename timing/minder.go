package timing

import (
	"container/heap"
	"time"
)

// Backend arms the single concrete timer behind a Minder.
type Backend interface {
	// Arm schedules the concrete timer to expire after delay, replacing any
	// previous arming. When active is false the timer is disarmed and delay
	// is meaningless.
	//
	// On expiry the backend must call Minder.Run on the minder's thread.
	Arm(delay time.Duration, active bool)
}

// Clock is the time source of a Minder.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Handle identifies one scheduled callback. It stays valid until the callback
// fires or the handle is passed to Minder.Remove.
type Handle struct {
	deadline time.Time
	seq      uint64
	fn       func()
	index    int // position in the heap, -1 once fired or removed
}

// Deadline returns the absolute time the callback is due.
func (h *Handle) Deadline() time.Time { return h.deadline }

// Pending reports whether the callback is still scheduled.
func (h *Handle) Pending() bool { return h != nil && h.index >= 0 }

// MinderOption configures a Minder.
type MinderOption func(*Minder)

// WithClock sets the time source. The default is the wall clock.
func WithClock(c Clock) MinderOption {
	return func(m *Minder) {
		if c != nil {
			m.clock = c
		}
	}
}

// Minder is a deadline ordered callback queue driving one Backend timer.
// Entries with equal deadlines fire in insertion order.
type Minder struct {
	backend Backend
	clock   Clock
	queue   handleHeap
	seq     uint64
	running bool
	armed   bool
}

// NewMinder creates a Minder that arms backend.
func NewMinder(backend Backend, opts ...MinderOption) *Minder {
	m := &Minder{backend: backend, clock: systemClock{}}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Now returns the current time of the minder's clock.
func (m *Minder) Now() time.Time { return m.clock.Now() }

// NotifyAfter schedules fn to run once delay has elapsed. fn must not be nil.
func (m *Minder) NotifyAfter(delay time.Duration, fn func()) *Handle {
	return m.NotifyAt(m.clock.Now().Add(delay), fn)
}

// NotifyAt schedules fn to run at the absolute time deadline. fn must not be nil.
func (m *Minder) NotifyAt(deadline time.Time, fn func()) *Handle {
	m.seq++
	h := &Handle{deadline: deadline, seq: m.seq, fn: fn}
	heap.Push(&m.queue, h)
	m.rearm()

	return h
}

// Remove cancels the callback behind h. Removing a handle that already fired
// or was already removed is a no-op.
func (m *Minder) Remove(h *Handle) {
	if !h.Pending() || h.index >= len(m.queue) || m.queue[h.index] != h {
		return
	}

	heap.Remove(&m.queue, h.index)
	m.rearm()
}

// Run invokes, in deadline order, every callback whose deadline has passed.
// Each callback runs exactly once and synchronously. Run never blocks; the
// backend is re-armed once after the queue is drained.
//
// Calling Run from inside a callback is a no-op.
func (m *Minder) Run() {
	if m.running {
		return
	}

	m.running = true
	defer func() {
		m.running = false
		m.rearm()
	}()

	now := m.clock.Now()
	for len(m.queue) > 0 && !m.queue[0].deadline.After(now) {
		h, _ := heap.Pop(&m.queue).(*Handle)
		h.fn()
	}
}

// Len returns the number of scheduled callbacks.
func (m *Minder) Len() int { return len(m.queue) }

// Armed reports whether the backend timer is currently armed.
func (m *Minder) Armed() bool { return m.armed }

// NextDeadline returns the nearest deadline, ok is false when nothing is scheduled.
func (m *Minder) NextDeadline() (time.Time, bool) {
	if len(m.queue) == 0 {
		return time.Time{}, false
	}

	return m.queue[0].deadline, true
}

// nextDelay returns the delay until the nearest deadline, clamped at zero.
func (m *Minder) nextDelay() (time.Duration, bool) {
	deadline, ok := m.NextDeadline()
	if !ok {
		return 0, false
	}

	delay := deadline.Sub(m.clock.Now())
	if delay < 0 {
		delay = 0
	}

	return delay, true
}

// rearm pushes the current minimum to the backend. Arming is deferred while
// Run is draining the queue.
func (m *Minder) rearm() {
	if m.running {
		return
	}

	delay, ok := m.nextDelay()
	m.armed = ok

	if m.backend != nil {
		m.backend.Arm(delay, ok)
	}
}

// handleHeap implements heap.Interface ordered by (deadline, seq).
type handleHeap []*Handle

func (q handleHeap) Len() int { return len(q) }

func (q handleHeap) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}

	return q[i].deadline.Before(q[j].deadline)
}

func (q handleHeap) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *handleHeap) Push(x any) {
	h, _ := x.(*Handle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *handleHeap) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]

	return h
}
