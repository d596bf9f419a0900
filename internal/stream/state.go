package stream

import "sync/atomic"

// State is the stream connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Backoff
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// stateHolder is an atomic State with an optional observer hook.
type stateHolder struct {
	v        atomic.Int32
	observer func(State)
}

func (h *stateHolder) set(s State) {
	h.v.Store(int32(s))
	if h.observer != nil {
		h.observer(s)
	}
}

func (h *stateHolder) get() State {
	return State(h.v.Load())
}
