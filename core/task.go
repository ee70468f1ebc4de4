package core

// task is a subscriber's handle: request snapshot, priority, callback
// sinks, and a back-reference to its Session by id, never by pointer, so a
// stale message simply fails to resolve instead of touching a session
// that has already been replaced. All fields are touched only on the
// orchestrator's serial context.
type task struct {
	id        string
	request   Request
	sessionID string // "" until attached
	callbacks Callbacks
	cancelled bool
	metrics   Metrics
}

// Handle is the public, thread-safe reference a caller holds after
// LoadImage returns. Cancel and SetPriority are safe to call from any
// goroutine; they marshal onto the orchestrator's serial context.
type Handle struct {
	id   string
	orch *Orchestrator
}

// ID returns the Task's identifier, a random UUID string unique to this
// LoadImage call. IDs carry no creation order.
func (h *Handle) ID() string { return h.id }

// Cancel requests cancellation of the underlying Task. Idempotent: once it
// returns, the completion callback will not fire unless it was already
// dispatched to the delivery context.
func (h *Handle) Cancel() {
	h.orch.cancel(h.id)
}

// SetPriority mutates the Task's priority and recomputes its Session's
// derived priority.
func (h *Handle) SetPriority(p Priority) {
	h.orch.setPriority(h.id, p)
}
