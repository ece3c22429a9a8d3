package timing

import (
	"time"
)

// VirtualScheduler is a virtual time clock that drives any number of minders.
//
// Time only moves when AdvanceBy or AdvanceTo is called. While advancing, the
// scheduler repeatedly picks the minder whose timer is due first, sets the
// clock to that deadline and runs it, so callbacks observe the exact virtual
// time they were scheduled for. Everything runs on the caller's goroutine.
//
// VirtualScheduler is not safe for concurrent use.
type VirtualScheduler struct {
	now      time.Time
	backends []*virtualBackend
	actions  *Minder
}

var _ Clock = (*VirtualScheduler)(nil)

// NewVirtualScheduler creates a scheduler whose clock starts at start.
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	s := &VirtualScheduler{now: start}
	s.actions = s.NewMinder()

	return s
}

// Now implements Clock.
func (s *VirtualScheduler) Now() time.Time {
	return s.now
}

// NewMinder creates a Minder that runs on this scheduler's virtual clock.
func (s *VirtualScheduler) NewMinder() *Minder {
	b := &virtualBackend{}
	m := NewMinder(b, WithClock(s))
	b.minder = m
	s.backends = append(s.backends, b)

	return m
}

// Schedule runs fn after delay of virtual time. It is a convenience for
// simulations that need their own timed actions, such as a device that
// replies with latency.
func (s *VirtualScheduler) Schedule(delay time.Duration, fn func()) *Handle {
	return s.actions.NotifyAfter(delay, fn)
}

// Cancel removes an action created by Schedule.
func (s *VirtualScheduler) Cancel(h *Handle) {
	s.actions.Remove(h)
}

// AdvanceBy moves the clock forward by d, firing everything that falls due.
func (s *VirtualScheduler) AdvanceBy(d time.Duration) {
	s.AdvanceTo(s.now.Add(d))
}

// AdvanceTo moves the clock to t, firing everything that falls due on the way.
// The clock never moves backwards.
func (s *VirtualScheduler) AdvanceTo(t time.Time) {
	for {
		b := s.nextDue(t)
		if b == nil {
			break
		}

		if b.due.After(s.now) {
			s.now = b.due
		}
		b.active = false
		b.minder.Run()
	}

	if t.After(s.now) {
		s.now = t
	}
}

// Pending returns the number of armed minders.
func (s *VirtualScheduler) Pending() int {
	n := 0
	for _, b := range s.backends {
		if b.active {
			n++
		}
	}

	return n
}

// nextDue returns the armed backend with the earliest due time not after t.
// Ties go to the minder created first.
func (s *VirtualScheduler) nextDue(t time.Time) *virtualBackend {
	var next *virtualBackend
	for _, b := range s.backends {
		if !b.active || b.due.After(t) {
			continue
		}
		if next == nil || b.due.Before(next.due) {
			next = b
		}
	}

	return next
}

type virtualBackend struct {
	minder *Minder
	active bool
	due    time.Time
}

// Arm implements Backend. The due time is computed from the minder's own
// clock, which is the scheduler.
func (b *virtualBackend) Arm(delay time.Duration, active bool) {
	b.active = active
	if active {
		b.due = b.minder.Now().Add(delay)
	}
}
