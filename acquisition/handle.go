package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Device is a frame source that can be opened by index and released
type Device interface {
	Open(index int) error
	Close() error
	IsOpen() bool
}

// Handle owns the device together with the scheduler that reads from it.
// While the scheduler is active the device is open; Stop always leaves it closed.
type Handle[T any] struct {
	device Device
	cycle  func(ctx context.Context) Result[T]
	emit   func(T)

	// lifecycle serializes Start and Stop. mu guards the fields below and is
	// never held while waiting for a cycle, so Running and Stats stay responsive.
	lifecycle sync.Mutex
	mu        sync.Mutex
	scheduler *Scheduler[T]
	stopping  *Scheduler[T]
	period    time.Duration
	stats     Stats // totals of finished sessions
}

// NewHandle creates a stopped handle for device
func NewHandle[T any](device Device, cycle func(ctx context.Context) Result[T], emit func(T)) *Handle[T] {
	return &Handle[T]{device: device, cycle: cycle, emit: emit}
}

// Start opens the camera at cameraIndex and begins cycling at fps.
// The frame rate is validated before the device is touched.
func (h *Handle[T]) Start(cameraIndex int, fps float64) error {
	period, err := PeriodFromFPS(fps)
	if err != nil {
		return err
	}

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	if h.Running() {
		return ErrAlreadyRunning
	}

	sched, err := NewScheduler(period, h.cycle, h.emit)
	if err != nil {
		return err
	}

	if err := h.device.Open(cameraIndex); err != nil {
		h.closeDevice()
		return fmt.Errorf("%w: camera %d: %v", ErrDeviceUnavailable, cameraIndex, err)
	}
	if !h.device.IsOpen() {
		h.closeDevice()
		return fmt.Errorf("%w: camera %d did not open", ErrDeviceUnavailable, cameraIndex)
	}

	h.mu.Lock()
	h.scheduler = sched
	h.period = period
	h.mu.Unlock()

	if err := sched.Start(); err != nil {
		h.mu.Lock()
		h.scheduler = nil
		h.mu.Unlock()
		h.closeDevice()
		return err
	}

	debugMsg("ACQUISITION", fmt.Sprintf("Started camera %d at %.1f fps (period %v)", cameraIndex, fps, period))
	return nil
}

// Stop halts the scheduler with a bounded wait of one period, then releases the device.
// A shutdown timeout is logged and returned, but the device is released regardless.
func (h *Handle[T]) Stop() error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	sched, period := h.scheduler, h.period
	h.scheduler = nil
	h.stopping = sched
	h.mu.Unlock()

	var stopErr error
	if sched != nil {
		if err := sched.Stop(period); err != nil {
			stopErr = err
			if errors.Is(err, ErrShutdownTimeout) {
				debugMsg("ACQUISITION", fmt.Sprintf("Warning: in-flight cycle still running after %v, releasing camera anyway", period))
			}
		}
		h.mu.Lock()
		h.accumulate(sched.Stats())
		h.stopping = nil
		h.mu.Unlock()
		debugMsg("ACQUISITION", "Stopped")
	}

	h.closeDevice()
	return stopErr
}

func (h *Handle[T]) closeDevice() {
	if !h.device.IsOpen() {
		return
	}
	if err := h.device.Close(); err != nil {
		debugMsg("ACQUISITION", fmt.Sprintf("Error closing camera: %v", err))
	}
}

func (h *Handle[T]) accumulate(s Stats) {
	h.stats.Ticks += s.Ticks
	h.stats.Emitted += s.Emitted
	h.stats.Failed += s.Failed
	h.stats.Skipped += s.Skipped
}

// Running reports whether a session is active
func (h *Handle[T]) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scheduler != nil && h.scheduler.Running()
}

// Period returns the period of the current or last session
func (h *Handle[T]) Period() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.period
}

// Stats returns cumulative counters across sessions
func (h *Handle[T]) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.stats
	for _, sched := range []*Scheduler[T]{h.scheduler, h.stopping} {
		if sched == nil {
			continue
		}
		cur := sched.Stats()
		out.Ticks += cur.Ticks
		out.Emitted += cur.Emitted
		out.Failed += cur.Failed
		out.Skipped += cur.Skipped
	}
	return out
}
