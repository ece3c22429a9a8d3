package timing

import (
	"time"

	"github.com/arloliu/go-serialproto/internal/pool"
)

// ChanBackend is the Backend for select based event loops.
//
// The loop goroutine owns both the minder and the backend. It selects on C and
// calls Minder.Run when a value arrives:
//
//	minder, timer := timing.NewChanMinder()
//	defer timer.Release()
//	for {
//	    select {
//	    case <-timer.C():
//	        minder.Run()
//	    case data := <-input:
//	        ...
//	    }
//	}
//
// ChanBackend is not safe for concurrent use.
type ChanBackend struct {
	timer  *time.Timer
	active bool
}

var _ Backend = (*ChanBackend)(nil)

// NewChanBackend creates a disarmed ChanBackend backed by a pooled timer.
func NewChanBackend() *ChanBackend {
	return &ChanBackend{timer: pool.GetStoppedTimer()}
}

// NewChanMinder creates a Minder together with the ChanBackend it arms.
func NewChanMinder(opts ...MinderOption) (*Minder, *ChanBackend) {
	b := NewChanBackend()

	return NewMinder(b, opts...), b
}

// Arm implements Backend.
func (b *ChanBackend) Arm(delay time.Duration, active bool) {
	pool.StopTimer(b.timer)
	b.active = active

	if active {
		b.timer.Reset(delay)
	}
}

// C returns the channel that receives a value when the armed delay expires.
func (b *ChanBackend) C() <-chan time.Time {
	return b.timer.C
}

// Active reports whether the timer is armed.
func (b *ChanBackend) Active() bool {
	return b.active
}

// Release returns the timer to the pool. The backend must not be used afterwards.
func (b *ChanBackend) Release() {
	if b.timer == nil {
		return
	}

	pool.PutTimer(b.timer)
	b.timer = nil
	b.active = false
}
