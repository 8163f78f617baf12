package predict

import "sync/atomic"

// Guard is a single-slot in-flight marker for prediction submissions.
// Windows completed while the slot is held are dropped by the caller.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire claims the slot and reports whether it was free.
func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the slot.
func (g *Guard) Release() {
	g.busy.Store(false)
}

// InFlight reports whether the slot is held.
func (g *Guard) InFlight() bool {
	return g.busy.Load()
}
