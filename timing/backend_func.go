package timing

import (
	"sync"
	"time"
)

// FuncBackend is the Backend for OS timer callbacks built on time.AfterFunc.
//
// The timer fires on a runtime goroutine. When a dispatch function is given,
// FuncBackend hands the Run call to it so the minder keeps running on its
// owner's thread (for example by posting into an event loop channel). Without
// dispatch, Run executes directly on the timer goroutine and the caller must
// serialize access to the minder and everything its callbacks touch.
//
// Firings that were superseded by a later Arm are dropped.
type FuncBackend struct {
	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	run      func()
	dispatch func(func())
}

var _ Backend = (*FuncBackend)(nil)

// NewFuncBackend creates a FuncBackend. dispatch may be nil.
// The backend does nothing until Bind attaches it to a minder.
func NewFuncBackend(dispatch func(func())) *FuncBackend {
	return &FuncBackend{dispatch: dispatch}
}

// NewFuncMinder creates a Minder driven by a FuncBackend.
func NewFuncMinder(dispatch func(func()), opts ...MinderOption) (*Minder, *FuncBackend) {
	b := NewFuncBackend(dispatch)
	m := NewMinder(b, opts...)
	b.Bind(m)

	return m, b
}

// Bind sets the minder whose Run is invoked on expiry.
func (b *FuncBackend) Bind(m *Minder) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.run = m.Run
}

// Arm implements Backend.
func (b *FuncBackend) Arm(delay time.Duration, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	if !active {
		return
	}

	gen := b.gen
	b.timer = time.AfterFunc(delay, func() { b.fire(gen) })
}

// Stop disarms the timer. A firing already handed to dispatch is dropped.
func (b *FuncBackend) Stop() {
	b.Arm(0, false)
}

// Active reports whether the timer is armed.
func (b *FuncBackend) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.timer != nil
}

func (b *FuncBackend) fire(gen uint64) {
	runIfCurrent := func() {
		b.mu.Lock()
		current := gen == b.gen
		if current {
			b.timer = nil
		}
		run := b.run
		b.mu.Unlock()

		if current && run != nil {
			run()
		}
	}

	if b.dispatch != nil {
		b.dispatch(runIfCurrent)
		return
	}

	runIfCurrent()
}
