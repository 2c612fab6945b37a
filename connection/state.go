package connection

import "sync/atomic"

// State is the externally visible lifecycle of a Client.
type State int32

const (
	Closed State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// atomicState holds the single atomically-observable state value every
// transition goes through.
type atomicState struct {
	v atomic.Int32
}

func (a *atomicState) Load() State {
	return State(a.v.Load())
}

// Exchange sets the state and reports whether the value actually
// changed, which lets callers treat repeated transitions as no-ops.
func (a *atomicState) Exchange(s State) bool {
	return State(a.v.Swap(int32(s))) != s
}

func (a *atomicState) CompareAndSwap(from State, to State) bool {
	return a.v.CompareAndSwap(int32(from), int32(to))
}
