package tracking

import (
	"fmt"
	"image"
	"time"
)

// EngineConfig holds the geometry and thresholds of the decision engine
type EngineConfig struct {
	TargetWidth     int // Centre target width (px)
	TargetHeight    int // Centre target height (px)
	MinWidth        int // Accepted rects must be wider than this
	MinHeight       int // Accepted rects must be taller than this
	MotionThreshold int // Horizontal shift (px) beyond which motion is reported
	Selection       Selection
}

// DefaultEngineConfig returns the reference engine parameters
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TargetWidth:     200,
		TargetHeight:    100,
		MinWidth:        20,
		MinHeight:       20,
		MotionThreshold: 20,
		Selection:       SelectLast,
	}
}

// Validate checks the config
func (c EngineConfig) Validate() error {
	if c.TargetWidth <= 0 || c.TargetHeight <= 0 {
		return fmt.Errorf("center target must be positive, got %dx%d", c.TargetWidth, c.TargetHeight)
	}
	if c.MinWidth < 0 || c.MinHeight < 0 {
		return fmt.Errorf("minimum bounding size must not be negative, got %dx%d", c.MinWidth, c.MinHeight)
	}
	if c.MotionThreshold < 0 {
		return fmt.Errorf("motion threshold must not be negative, got %d", c.MotionThreshold)
	}
	return nil
}

// Engine decides the steering direction from the candidate rectangles of one frame.
// Direction is recomputed from scratch every cycle; only motion trend looks at the previous state.
type Engine struct {
	config   EngineConfig
	velocity *VelocityEstimator
	now      func() time.Time
}

// NewEngine creates a decision engine
func NewEngine(config EngineConfig) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config:   config,
		velocity: NewVelocityEstimator(),
		now:      time.Now,
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() EngineConfig {
	return e.config
}

// CenterTarget returns the w x h rectangle centred in a frame of the given size
func CenterTarget(frameSize image.Point, w, h int) image.Rectangle {
	x := frameSize.X/2 - w/2
	y := frameSize.Y/2 - h/2
	return image.Rect(x, y, x+w, y+h)
}

// Intersects reports whether a and b overlap on both axes. Touching edges do not count.
func Intersects(a, b image.Rectangle) bool {
	return a.Overlaps(b)
}

// DirectionFor classifies one candidate against the centre target
func DirectionFor(candidate, target image.Rectangle) Direction {
	if Intersects(candidate, target) {
		return DirectionCentered
	}
	if candidate.Min.X > target.Max.X {
		return DirectionRight
	}
	return DirectionLeft
}

// Decide evaluates candidates for a frame of frameSize given the previous cycle's state
func (e *Engine) Decide(candidates []image.Rectangle, frameSize image.Point, prev TrackerState) Decision {
	target := CenterTarget(frameSize, e.config.TargetWidth, e.config.TargetHeight)
	d := Decision{
		Direction:     DirectionCentered,
		ObjectPresent: len(candidates) > 0,
		Mode:          ModeNoObject,
		Motion:        MotionNone,
		Target:        target,
	}

	var accepted *image.Rectangle
	bestArea := -1
	for i := range candidates {
		c := candidates[i]
		dir := DirectionFor(c, target)

		switch e.config.Selection {
		case SelectLargest:
			if area := c.Dx() * c.Dy(); area > bestArea {
				bestArea = area
				d.Direction = dir
			}
		default:
			d.Direction = dir
		}

		// Undersized blobs still steer but are neither drawn nor remembered.
		if c.Dx() > e.config.MinWidth && c.Dy() > e.config.MinHeight {
			d.Accepted = append(d.Accepted, c)
			accepted = &c
		}
	}

	if d.ObjectPresent {
		if d.Direction == DirectionCentered {
			d.Mode = ModeCentered
		} else {
			d.Mode = ModeOffCenter
		}
	}

	if accepted != nil && prev.LastAccepted != nil {
		d.Motion = e.motionBetween(*prev.LastAccepted, *accepted)
	}

	if accepted != nil {
		center := image.Pt(accepted.Min.X+accepted.Dx()/2, accepted.Min.Y+accepted.Dy()/2)
		vx, vy := e.velocity.Update(center, e.now())
		d.Velocity = image.Pt(int(vx), int(vy))
	} else {
		e.velocity.Reset()
	}

	d.State = TrackerState{
		Direction:     d.Direction,
		ObjectPresent: d.ObjectPresent,
		LastAccepted:  accepted,
		Mode:          d.Mode,
		Motion:        d.Motion,
	}

	if d.Mode != prev.Mode {
		debugMsg("TRACKING", fmt.Sprintf("Mode %s -> %s (direction: %s, candidates: %d)", prev.Mode, d.Mode, d.Direction, len(candidates)))
	}
	if d.Motion != MotionNone {
		debugMsg("MOTION", fmt.Sprintf("Object %s (x %d -> %d)", d.Motion, prev.LastAccepted.Min.X, accepted.Min.X))
	}

	return d
}

// motionBetween compares the x coordinate of consecutive accepted rectangles
func (e *Engine) motionBetween(last, current image.Rectangle) Motion {
	dx := current.Min.X - last.Min.X
	switch {
	case dx > e.config.MotionThreshold:
		return MotionRight
	case dx < -e.config.MotionThreshold:
		return MotionLeft
	default:
		return MotionNone
	}
}

// Reset clears the velocity estimate, used when a new acquisition session starts
func (e *Engine) Reset() {
	e.velocity.Reset()
}
