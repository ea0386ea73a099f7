package sink

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"blobcam/detection"
	"blobcam/tracking"
)

// Frame is one annotated cycle output on its way to the consumers
type Frame struct {
	Image     gocv.Mat // annotated BGR frame
	Mask      gocv.Mat // threshold preview, diagnostics only
	Morph     gocv.Mat // morphology preview, diagnostics only
	Status    string
	State     tracking.TrackerState
	Velocity  image.Point
	Sequence  uint64
	Timestamp time.Time
	SessionID string
}

// HasPreviews reports whether mask and morphology previews are attached
func (f *Frame) HasPreviews() bool {
	return detection.IsValidFrame(f.Mask) && detection.IsValidFrame(f.Morph)
}

// Close releases every Mat the frame holds
func (f *Frame) Close() {
	if f == nil {
		return
	}
	f.Image.Close()
	f.Mask.Close()
	f.Morph.Close()
}

// ReleaseFrame is the Handoff release callback for frames
func ReleaseFrame(f *Frame) {
	f.Close()
}

// Consumer receives frames from the handoff, one at a time
type Consumer interface {
	Name() string
	Consume(f *Frame) error
}

// Dispatch returns a Handoff consume function that feeds every consumer in order.
// A failing consumer is logged and does not stop the others.
func Dispatch(consumers ...Consumer) func(*Frame) {
	return func(f *Frame) {
		for _, c := range consumers {
			if err := c.Consume(f); err != nil {
				debugMsg("SINK", fmt.Sprintf("%s failed on frame %d: %v", c.Name(), f.Sequence, err), f.SessionID)
			}
		}
	}
}
