package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"blobcam/tracking"

	"gocv.io/x/gocv"
)

// debugMsgFunc is a function that will be set by main package to use unified logging
var debugMsgFunc func(component, message string, sessionID ...string)

// SetDebugFunction allows main package to provide the debug logger
func SetDebugFunction(fn func(component, message string, sessionID ...string)) {
	debugMsgFunc = fn
}

// debugMsg is a wrapper that handles nil checks
func debugMsg(component, message string, sessionID ...string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message, sessionID...)
	}
}

// HistorySource supplies recent log lines for the terminal overlay
type HistorySource interface {
	GetOverlayHistory() []string
}

// Options toggles the optional overlays
type Options struct {
	StatusPanel     bool // Status panel in the lower-left corner
	TerminalOverlay bool // Recent log lines in the upper-left corner
	VelocityArrow   bool // Arrow showing the estimated blob velocity
}

// Renderer handles visualization and overlay rendering
type Renderer struct {
	options Options
	history HistorySource

	targetColor    color.RGBA // Centre target outline
	boundingColor  color.RGBA // Accepted blob rects
	directionColor color.RGBA // Edge strip showing the steering side
	velocityColor  color.RGBA
	textColor      color.RGBA

	targetThickness   int
	boundingThickness int
	stripWidth        int

	// Terminal overlay layout
	maxTerminalLines int
	maxLineLen       int

	frameCount int
	lastFrame  time.Time
	fps        float64
}

// NewRenderer creates a renderer. history may be nil.
func NewRenderer(options Options, history HistorySource) *Renderer {
	debugMsg("OVERLAY", fmt.Sprintf("Renderer ready (status panel: %v, terminal: %v, velocity: %v)",
		options.StatusPanel, options.TerminalOverlay, options.VelocityArrow))
	return &Renderer{
		options:           options,
		history:           history,
		targetColor:       color.RGBA{255, 0, 0, 255}, // Red
		boundingColor:     color.RGBA{0, 0, 255, 255}, // Blue
		directionColor:    color.RGBA{200, 0, 0, 255}, // Dark red
		velocityColor:     color.RGBA{0, 135, 83, 255},
		textColor:         color.RGBA{255, 255, 255, 255},
		targetThickness:   10,
		boundingThickness: 4,
		stripWidth:        20,
		maxTerminalLines:  20,
		maxLineLen:        90,
	}
}

// Options returns the active overlay toggles
func (r *Renderer) Options() Options {
	return r.options
}

// Annotate draws the centre target, the accepted rects and the direction strip,
// then the optional overlays. It draws in place on img.
func (r *Renderer) Annotate(img *gocv.Mat, d tracking.Decision, status string) error {
	if img == nil || img.Ptr() == nil || img.Empty() {
		return fmt.Errorf("annotate: empty frame")
	}
	r.tick()

	gocv.Rectangle(img, d.Target, r.targetColor, r.targetThickness)

	for _, rect := range d.Accepted {
		gocv.Rectangle(img, rect, r.boundingColor, r.boundingThickness)
	}

	if strip, ok := DirectionStrip(image.Pt(img.Cols(), img.Rows()), d.Direction, r.stripWidth); ok {
		gocv.Rectangle(img, strip, r.directionColor, -1)
	}

	if r.options.VelocityArrow && d.State.LastAccepted != nil && d.Velocity != (image.Point{}) {
		r.drawVelocityArrow(img, *d.State.LastAccepted, d.Velocity)
	}

	if r.options.TerminalOverlay {
		r.drawTerminal(img)
	}
	if r.options.StatusPanel {
		r.drawStatusPanel(img, d, status)
	}
	return nil
}

// DirectionStrip returns the edge band marking the steering side. Centred yields no strip.
func DirectionStrip(frameSize image.Point, dir tracking.Direction, width int) (image.Rectangle, bool) {
	switch dir {
	case tracking.DirectionLeft:
		return image.Rect(0, 0, width, frameSize.Y), true
	case tracking.DirectionRight:
		return image.Rect(frameSize.X-width, 0, frameSize.X, frameSize.Y), true
	default:
		return image.Rectangle{}, false
	}
}

// tick updates the rendered frame rate
func (r *Renderer) tick() {
	now := time.Now()
	if !r.lastFrame.IsZero() {
		if dt := now.Sub(r.lastFrame).Seconds(); dt > 0 {
			inst := 1 / dt
			if r.fps == 0 {
				r.fps = inst
			} else {
				r.fps = 0.9*r.fps + 0.1*inst
			}
		}
	}
	r.lastFrame = now
	r.frameCount++
}

// StatusLines returns the lines shown in the status panel
func (r *Renderer) StatusLines(d tracking.Decision, status string) []string {
	lines := []string{
		fmt.Sprintf("Time: %s", time.Now().Format("Mon Jan 2 15:04:05 MST 2006")),
		fmt.Sprintf("Frame: %d", r.frameCount),
		fmt.Sprintf("FPS: %.1f", r.fps),
		fmt.Sprintf("Mode: %s", d.Mode),
		fmt.Sprintf("Direction: %s", d.Direction),
	}
	if d.Motion != tracking.MotionNone {
		lines = append(lines, fmt.Sprintf("Motion: %s", d.Motion))
	}
	if d.State.LastAccepted != nil {
		rect := *d.State.LastAccepted
		lines = append(lines, fmt.Sprintf("Blob: %dx%dpx @(%d,%d)", rect.Dx(), rect.Dy(), rect.Min.X, rect.Min.Y))
	}
	if status != "" {
		lines = append(lines, status)
	}
	return lines
}

func (r *Renderer) drawStatusPanel(img *gocv.Mat, d tracking.Decision, status string) {
	lines := r.StatusLines(d, status)
	lineHeight := 18

	panelHeight := len(lines)*lineHeight + 20
	panelWidth := 500
	if panelWidth > img.Cols()-20 {
		panelWidth = img.Cols() - 20
	}
	panelY := img.Rows() - panelHeight - 10
	panel := image.Rect(10, panelY, 10+panelWidth, panelY+panelHeight)
	shade(img, panel, 0.6)

	for i, line := range lines {
		if len(line) > r.maxLineLen {
			line = line[:r.maxLineLen-3] + "..."
		}
		textPoint := image.Pt(20, panelY+20+i*lineHeight)
		gocv.PutText(img, line, textPoint, gocv.FontHersheySimplex, 0.45, r.textColor, 1)
	}
}

func (r *Renderer) drawTerminal(img *gocv.Mat) {
	if r.history == nil {
		return
	}
	messages := r.history.GetOverlayHistory()
	if len(messages) > r.maxTerminalLines {
		messages = messages[len(messages)-r.maxTerminalLines:]
	}

	lineHeight := 14
	terminalX, terminalY := 30, 20
	terminalWidth := 560
	if terminalWidth > img.Cols()-terminalX-10 {
		terminalWidth = img.Cols() - terminalX - 10
	}
	terminalHeight := r.maxTerminalLines*lineHeight + 10
	shade(img, image.Rect(terminalX, terminalY, terminalX+terminalWidth, terminalY+terminalHeight), 0.7)

	contentY := terminalY + 14
	if len(messages) == 0 {
		gocv.PutText(img, "No debug messages available...", image.Pt(terminalX+10, contentY),
			gocv.FontHersheySimplex, 0.4, color.RGBA{128, 128, 128, 255}, 1)
		return
	}
	for _, message := range messages {
		if len(message) > r.maxLineLen {
			message = message[:r.maxLineLen-3] + "..."
		}
		gocv.PutText(img, message, image.Pt(terminalX+10, contentY), gocv.FontHersheySimplex, 0.35, r.textColor, 1)
		contentY += lineHeight
	}
}

// drawVelocityArrow draws the velocity estimate from the blob centre, scaled to half a second of travel
func (r *Renderer) drawVelocityArrow(img *gocv.Mat, rect image.Rectangle, velocity image.Point) {
	center := image.Pt(rect.Min.X+rect.Dx()/2, rect.Min.Y+rect.Dy()/2)
	end := image.Pt(center.X+velocity.X/2, center.Y+velocity.Y/2)
	gocv.ArrowedLine(img, center, end, r.velocityColor, 2)

	speed := math.Hypot(float64(velocity.X), float64(velocity.Y))
	label := fmt.Sprintf("%.0fpx/s %s", speed, formatHeading(velocity))
	gocv.PutText(img, label, image.Pt(end.X+10, end.Y-8), gocv.FontHersheySimplex, 0.5, r.velocityColor, 1)
}

// formatHeading names the 8-way compass heading of v in image coordinates (y grows down)
func formatHeading(v image.Point) string {
	if v == (image.Point{}) {
		return "STILL"
	}
	degrees := math.Atan2(float64(v.Y), float64(v.X)) * 180 / math.Pi
	if degrees < 0 {
		degrees += 360
	}

	switch {
	case degrees >= 337.5 || degrees < 22.5:
		return "RIGHT"
	case degrees < 67.5:
		return "DOWN-RIGHT"
	case degrees < 112.5:
		return "DOWN"
	case degrees < 157.5:
		return "DOWN-LEFT"
	case degrees < 202.5:
		return "LEFT"
	case degrees < 247.5:
		return "UP-LEFT"
	case degrees < 292.5:
		return "UP"
	default:
		return "UP-RIGHT"
	}
}

// shade darkens rect in place, keeping (1-alpha) of the original pixels
func shade(img *gocv.Mat, rect image.Rectangle, alpha float64) {
	rect = rect.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if rect.Empty() {
		return
	}
	region := img.Region(rect)
	defer region.Close()

	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rect.Dy(), rect.Dx(), region.Type())
	defer black.Close()

	gocv.AddWeighted(black, alpha, region, 1-alpha, 0, &region)
}
