package driver

import "sync/atomic"

// OpState is where a Driver is in its lifecycle.
//
// A driver starts Closed. Open moves it to Opening while the loop and reader
// goroutines start, then to Opened once both run. Close, a dead stream or a
// fatal framing error move it to Closing, and it ends Closed after every
// outstanding future has failed. A closed driver is never reopened.
type OpState uint32

const (
	ClosedState OpState = iota
	ClosingState
	OpeningState
	OpenedState
)

var opStateNames = [...]string{
	ClosedState:  "Closed",
	ClosingState: "Closing",
	OpeningState: "Opening",
	OpenedState:  "Opened",
}

func (s OpState) String() string {
	if int(s) < len(opStateNames) {
		return opStateNames[s]
	}

	return "Unknown"
}

// AtomicOpState is the lifecycle state shared by the caller goroutines, the
// reader and Close.
type AtomicOpState struct {
	state atomic.Uint32
}

func (st *AtomicOpState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *AtomicOpState) Get() OpState {
	return OpState(st.state.Load())
}

// Set stores state without checking the transition. Close uses it to force
// the final states.
func (st *AtomicOpState) Set(state OpState) {
	st.state.Store(uint32(state))
}

func (st *AtomicOpState) IsClosed() bool  { return st.Get() == ClosedState }
func (st *AtomicOpState) IsClosing() bool { return st.Get() == ClosingState }
func (st *AtomicOpState) IsOpening() bool { return st.Get() == OpeningState }
func (st *AtomicOpState) IsOpened() bool  { return st.Get() == OpenedState }

// ToOpening claims the driver for Open. Only one caller wins.
func (st *AtomicOpState) ToOpening() bool {
	return st.swap(ClosedState, OpeningState)
}

// ToOpened finishes Open. It fails when Close started in between.
func (st *AtomicOpState) ToOpened() bool {
	return st.IsOpened() || st.swap(OpeningState, OpenedState)
}

// ToClosing starts Close from either Opened or a half finished Open.
func (st *AtomicOpState) ToClosing() bool {
	return st.swap(OpenedState, ClosingState) || st.swap(OpeningState, ClosingState)
}

// ToClosed finishes Close.
func (st *AtomicOpState) ToClosed() bool {
	return st.IsClosed() || st.swap(ClosingState, ClosedState)
}

func (st *AtomicOpState) swap(from, to OpState) bool {
	return st.state.CompareAndSwap(uint32(from), uint32(to))
}
