package acquisition

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Result is what one cycle produced
type Result[T any] struct {
	Value T
	Emit  bool  // false with a nil Err means "nothing this time"
	Err   error // transient processing failure, logged and skipped
}

// Stats counts cycle outcomes since the scheduler was created
type Stats struct {
	Ticks   uint64 `json:"ticks"`
	Emitted uint64 `json:"emitted"`
	Failed  uint64 `json:"failed"`
	Skipped uint64 `json:"skipped"`
}

// Scheduler runs cycle at a fixed period on a single worker goroutine.
// Cycles never overlap; a slow cycle costs the slots it overran, there is no catch-up burst.
type Scheduler[T any] struct {
	period time.Duration
	cycle  func(ctx context.Context) Result[T]
	emit   func(T)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	ticks   atomic.Uint64
	emitted atomic.Uint64
	failed  atomic.Uint64
	skipped atomic.Uint64
}

// NewScheduler creates a stopped scheduler
func NewScheduler[T any](period time.Duration, cycle func(ctx context.Context) Result[T], emit func(T)) (*Scheduler[T], error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %v", ErrConfiguration, period)
	}
	if cycle == nil {
		return nil, fmt.Errorf("%w: cycle function is required", ErrConfiguration)
	}
	if emit == nil {
		emit = func(T) {}
	}
	return &Scheduler[T]{period: period, cycle: cycle, emit: emit}, nil
}

// Start launches the worker. The first cycle runs immediately.
func (s *Scheduler[T]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	return nil
}

func (s *Scheduler[T]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		// A tick that fired while the cycle was running belongs to an overrun slot
		select {
		case <-ticker.C:
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Stop may have landed together with a tick
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Scheduler[T]) runOnce(ctx context.Context) {
	s.ticks.Add(1)
	res := s.safeCycle(ctx)

	switch {
	case res.Err != nil:
		s.failed.Add(1)
		debugMsg("ACQUISITION", fmt.Sprintf("Cycle failed: %v", res.Err))
	case !res.Emit:
		s.skipped.Add(1)
	default:
		s.emitted.Add(1)
		s.emit(res.Value)
	}
}

// safeCycle turns a panic in the cycle into a processing error
func (s *Scheduler[T]) safeCycle(ctx context.Context) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: fmt.Errorf("cycle panic: %v", r)}
		}
	}()
	return s.cycle(ctx)
}

// Stop cancels the worker and waits at most wait for the in-flight cycle.
// Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler[T]) Stop(wait time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

// Running reports whether the worker is active
func (s *Scheduler[T]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Period returns the cycle period
func (s *Scheduler[T]) Period() time.Duration {
	return s.period
}

// Stats returns a snapshot of the counters
func (s *Scheduler[T]) Stats() Stats {
	return Stats{
		Ticks:   s.ticks.Load(),
		Emitted: s.emitted.Load(),
		Failed:  s.failed.Load(),
		Skipped: s.skipped.Load(),
	}
}
