package sink

import (
	"context"
	"sync"
	"sync/atomic"
)

// Global debug function for sink package
var debugMsgFunc func(string, string, ...string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(string, string, ...string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string, sessionID ...string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message, sessionID...)
	}
}

// HandoffStats counts values through a Handoff
type HandoffStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
}

// Handoff is a depth-1, latest-wins queue between the acquisition worker and
// a slower consumer. Publish never blocks; a value still waiting when a newer
// one arrives is released without being delivered.
type Handoff[T any] struct {
	mu      sync.Mutex
	pending T
	has     bool
	closed  bool
	notify  chan struct{}
	release func(T)

	published atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewHandoff creates a handoff. release may be nil.
func NewHandoff[T any](release func(T)) *Handoff[T] {
	if release == nil {
		release = func(T) {}
	}
	return &Handoff[T]{
		notify:  make(chan struct{}, 1),
		release: release,
	}
}

// Publish queues v, replacing and releasing any value not yet taken.
// After Close, v is released immediately.
func (h *Handoff[T]) Publish(v T) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.release(v)
		return
	}
	old, hadOld := h.pending, h.has
	h.pending, h.has = v, true
	h.mu.Unlock()

	h.published.Add(1)
	if hadOld {
		h.dropped.Add(1)
		h.release(old)
	}

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// take removes the pending value, if any
func (h *Handoff[T]) take() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var zero T
	if !h.has {
		return zero, false
	}
	v := h.pending
	h.pending, h.has = zero, false
	return v, true
}

// Run delivers values to consume one at a time until ctx is done or the
// handoff is closed. Each value is released after consume returns.
func (h *Handoff[T]) Run(ctx context.Context, consume func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.notify:
		}

		v, ok := h.take()
		if !ok {
			if h.isClosed() {
				return
			}
			continue
		}
		consume(v)
		h.delivered.Add(1)
		h.release(v)
	}
}

func (h *Handoff[T]) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close releases any pending value and wakes Run so it returns
func (h *Handoff[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	v, had := h.pending, h.has
	var zero T
	h.pending, h.has = zero, false
	h.mu.Unlock()

	if had {
		h.release(v)
	}
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Stats returns the counters
func (h *Handoff[T]) Stats() HandoffStats {
	return HandoffStats{
		Published: h.published.Load(),
		Dropped:   h.dropped.Load(),
		Delivered: h.delivered.Load(),
	}
}
