package wshub

import "go.uber.org/atomic"

// State is the lifecycle enum shared by the manager and every host.
// Values are ordered so comparisons like "state >= Start" match the
// required enum-order monotonicity directly: a host or manager's state
// only ever moves forward through Ready < Start < ShuttingDown < Stop.
type State int32

const (
	StateReady State = iota
	StateStart
	StateShuttingDown
	StateStop
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateStart:
		return "Start"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// stateWord is a volatile lifecycle word: reads are monotonic and every
// transition happens only through the owning component's lifecycle
// operations. It is a thin wrapper over
// go.uber.org/atomic.Int32 rather than sync/atomic directly, matching
// the host module's own convention of reaching for uber/atomic's typed
// wrappers instead of raw int32 + sync/atomic calls.
type stateWord struct {
	v atomic.Int32
}

func (w *stateWord) Load() State {
	return State(w.v.Load())
}

func (w *stateWord) Store(s State) {
	w.v.Store(int32(s))
}

// CompareAndSwap transitions the word from old to new, returning false
// if the current value was not old. Used by Manager.Stop so that only a
// call that finds the manager in Start moves it to ShuttingDown;
// Manager.Start relies on a sync.Once instead.
func (w *stateWord) CompareAndSwap(old, new State) bool {
	return w.v.CompareAndSwap(int32(old), int32(new))
}
