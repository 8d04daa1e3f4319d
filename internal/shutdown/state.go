package shutdown

import "log"

// State is the coordinator's lifecycle state.
type State int

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Registry counts open real-time connections. It is not synchronised: only
// the coordinator's loop goroutine touches it.
type Registry struct {
	count int
}

func (r *Registry) Increment() int {
	r.count++
	return r.count
}

// Decrement lowers the count and returns the new value. A decrement at zero
// means a close arrived without a matching open; it is logged and ignored.
func (r *Registry) Decrement() int {
	if r.count == 0 {
		log.Printf("[shutdown] BUG: connection closed with count already at zero")
		return 0
	}
	r.count--
	return r.count
}

func (r *Registry) Count() int {
	return r.count
}
