package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"blobcam/acquisition"
	"blobcam/detection"
	"blobcam/overlay"
	"blobcam/sink"
	"blobcam/tracking"
)

// Global debug function for pipeline package
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

// Source is a camera the tracker can open, read and release
type Source interface {
	acquisition.Device
	Read() (gocv.Mat, error)
}

// Tracker runs one read -> segment -> decide -> annotate cycle per tick and
// hands the annotated frame to publish.
type Tracker struct {
	source    Source
	segmenter *detection.Segmenter
	engine    *tracking.Engine
	renderer  *overlay.Renderer
	colors    *detection.ColorStore
	publish   func(*sink.Frame)
	handle    *acquisition.Handle[*sink.Frame]

	// lifecycle serializes Start and Stop
	lifecycle    sync.Mutex
	sessionEnded func(session string)

	mu       sync.RWMutex
	state    tracking.TrackerState
	session  string
	velocity image.Point

	sequence atomic.Uint64
}

// NewTracker wires the stages together. publish receives ownership of every
// emitted frame; when nil, frames are released right away.
func NewTracker(source Source, segmenter *detection.Segmenter, engine *tracking.Engine, renderer *overlay.Renderer,
	colors *detection.ColorStore, publish func(*sink.Frame)) *Tracker {
	if publish == nil {
		publish = sink.ReleaseFrame
	}
	t := &Tracker{
		source:    source,
		segmenter: segmenter,
		engine:    engine,
		renderer:  renderer,
		colors:    colors,
		publish:   publish,
	}
	t.handle = acquisition.NewHandle(source, t.Cycle, t.publish)
	return t
}

// Cycle performs one tracking step. An empty read is a silent skip; failures
// release the frame and are reported as a failed result.
func (t *Tracker) Cycle(ctx context.Context) acquisition.Result[*sink.Frame] {
	if ctx.Err() != nil {
		return acquisition.Result[*sink.Frame]{}
	}

	frame, err := t.source.Read()
	if err != nil {
		frame.Close()
		return acquisition.Result[*sink.Frame]{Err: fmt.Errorf("read frame: %w", err)}
	}
	if !detection.IsValidFrame(frame) {
		frame.Close()
		return acquisition.Result[*sink.Frame]{}
	}

	colorRange := t.colors.Snapshot()

	seg, err := t.segmenter.Segment(frame, colorRange)
	if err != nil {
		frame.Close()
		return acquisition.Result[*sink.Frame]{Err: fmt.Errorf("segment: %w", err)}
	}

	t.mu.Lock()
	prev := t.state
	session := t.session
	d := t.engine.Decide(seg.Rects, image.Pt(frame.Cols(), frame.Rows()), prev)
	t.state = d.State.Copy()
	t.velocity = d.Velocity
	t.mu.Unlock()

	status := StatusText(colorRange, d)
	if err := t.renderer.Annotate(&frame, d, status); err != nil {
		frame.Close()
		seg.Close()
		return acquisition.Result[*sink.Frame]{Err: fmt.Errorf("annotate: %w", err)}
	}

	out := &sink.Frame{
		Image:     frame,
		Mask:      seg.Mask,
		Morph:     seg.Morph,
		Status:    status,
		State:     d.State.Copy(),
		Velocity:  d.Velocity,
		Sequence:  t.sequence.Add(1),
		Timestamp: time.Now(),
		SessionID: session,
	}
	return acquisition.Result[*sink.Frame]{Value: out, Emit: true}
}

// StatusText renders the operator status line for one decision
func StatusText(r detection.ColorRange, d tracking.Decision) string {
	var b strings.Builder
	b.WriteString(r.String())
	if d.ObjectPresent {
		b.WriteString(" | object: present")
	} else {
		b.WriteString(" | object: absent")
	}
	b.WriteString(" | direction: ")
	b.WriteString(d.Direction.String())
	if d.Motion != tracking.MotionNone {
		b.WriteString(" | motion: ")
		b.WriteString(d.Motion.String())
	}
	return b.String()
}

// Start resets the tracker state and opens camera cameraIndex at fps.
// It returns the new session id.
func (t *Tracker) Start(cameraIndex int, fps float64) (string, error) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.handle.Running() {
		return "", acquisition.ErrAlreadyRunning
	}

	session := uuid.New().String()
	t.mu.Lock()
	t.state = tracking.TrackerState{}
	t.velocity = image.Point{}
	t.session = session
	t.engine.Reset()
	t.mu.Unlock()

	if err := t.handle.Start(cameraIndex, fps); err != nil {
		t.mu.Lock()
		t.session = ""
		t.mu.Unlock()
		debugMsg("PIPELINE", fmt.Sprintf("Start failed: %v", err))
		return "", err
	}

	debugMsg("PIPELINE", fmt.Sprintf("Session started on camera %d at %.1f fps with %s", cameraIndex, fps, t.colors.Snapshot()), session)
	return session, nil
}

// Stop ends the session and releases the camera. Stopping twice is harmless.
// A shutdown timeout is returned but the camera is still released.
func (t *Tracker) Stop() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	wasRunning := t.handle.Running()
	err := t.handle.Stop()

	t.mu.RLock()
	session := t.session
	t.mu.RUnlock()

	if errors.Is(err, acquisition.ErrShutdownTimeout) {
		debugMsg("PIPELINE", "Session stopped after shutdown timeout", session)
	} else if wasRunning {
		debugMsg("PIPELINE", "Session stopped", session)
	}
	if wasRunning && t.sessionEnded != nil {
		t.sessionEnded(session)
	}
	return err
}

// OnSessionEnd registers fn to run after a running session has been stopped.
// Call it before the first Start.
func (t *Tracker) OnSessionEnd(fn func(session string)) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.sessionEnded = fn
}

// Running reports whether a session is active
func (t *Tracker) Running() bool {
	return t.handle.Running()
}

// State returns a copy of the latest tracker state
func (t *Tracker) State() tracking.TrackerState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Copy()
}

// Velocity returns the latest velocity estimate in px/s
func (t *Tracker) Velocity() image.Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.velocity
}

// Session returns the id of the current or last session
func (t *Tracker) Session() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

// ColorRange returns the active colour range
func (t *Tracker) ColorRange() detection.ColorRange {
	return t.colors.Snapshot()
}

// SetColorRange validates and publishes a new colour range; the next cycle picks it up
func (t *Tracker) SetColorRange(r detection.ColorRange) error {
	return t.colors.Set(r)
}

// Stats returns the acquisition counters
func (t *Tracker) Stats() acquisition.Stats {
	return t.handle.Stats()
}

// Period returns the cycle period of the current or last session
func (t *Tracker) Period() time.Duration {
	return t.handle.Period()
}
