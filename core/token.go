package core

import "sync"

// TokenSource produces a one-shot CancelToken. Cancel is idempotent and
// safe from any goroutine; callbacks registered on the token run in
// registration order the first time Cancel is called, each exactly once.
type TokenSource struct {
	mu        sync.Mutex
	cancelled bool
	callbacks []func()
}

// NewTokenSource returns a fresh, non-cancelled source.
func NewTokenSource() *TokenSource {
	return &TokenSource{}
}

// Token returns the (single) token this source governs.
func (s *TokenSource) Token() *CancelToken {
	return &CancelToken{src: s}
}

// Cancel fires the token. Safe to call more than once; only the first call
// has any effect.
func (s *TokenSource) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	cbs := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// IsCancelling reports whether Cancel has been called.
func (s *TokenSource) IsCancelling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// CancelToken is the read side of a TokenSource: callers can observe
// cancellation and register callbacks but cannot fire it themselves.
type CancelToken struct {
	src *TokenSource
}

// IsCancelling reports whether the underlying source has been cancelled.
func (t *CancelToken) IsCancelling() bool {
	if t == nil {
		return false
	}
	return t.src.IsCancelling()
}

// Register appends cb to run when the token cancels. If already cancelled,
// cb runs inline, synchronously, before Register returns.
func (t *CancelToken) Register(cb func()) {
	if t == nil {
		return
	}
	s := t.src
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		cb()
		return
	}
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}
