// Package pool recycles *time.Timer values for the timer backends and for
// bounded waits on driver futures.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer from the pool that fires after d.
//
// Return the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer) // only *time.Timer values are ever put into the pool
		t.Reset(d)

		return t
	}

	return time.NewTimer(d)
}

// GetStoppedTimer returns a timer that is not running and whose channel is empty.
// The caller arms it with Reset.
func GetStoppedTimer() *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		return t
	}

	t := time.NewTimer(time.Hour)
	StopTimer(t)

	return t
}

// StopTimer stops t and drains its channel if a value is pending.
func StopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// PutTimer returns timer to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	StopTimer(t)
	timerPool.Put(t)
}
