package detection

import (
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Global debug function for detection package
var debugMsgFunc func(string, string, ...string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(string, string, ...string)) {
	debugMsgFunc = fn
}

// debugMsg is a wrapper that handles nil checks
func debugMsg(component, message string, sessionID ...string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message, sessionID...)
	}
}

// Processor is the set of image primitives the segmentation pipeline is built from.
// Every returned Mat is owned by the caller.
type Processor interface {
	Smooth(src gocv.Mat, kernel int) (gocv.Mat, error)
	ConvertColorspace(src gocv.Mat) (gocv.Mat, error)
	RangeThreshold(src gocv.Mat, r ColorRange) (gocv.Mat, error)
	Erode(mask gocv.Mat, size int) (gocv.Mat, error)
	Dilate(mask gocv.Mat, size int) (gocv.Mat, error)
	FindContours(mask gocv.Mat) (*Contours, error)
	BoundingRect(contour gocv.PointVector) image.Rectangle
	Close() error
	Info() ProcessorInfo
}

// ProcessorInfo contains information about the image processor
type ProcessorInfo struct {
	Backend  string        // "OpenCV"
	Version  string        // OpenCV library version
	InitTime time.Duration // Time taken to initialize
}

// Contours holds the contour regions of a mask together with their two-level
// hierarchy (outer boundaries and the holes nested in them).
type Contours struct {
	Points    gocv.PointsVector
	Hierarchy gocv.Mat
}

// Len returns the number of contours found
func (c *Contours) Len() int {
	if c == nil {
		return 0
	}
	return c.Points.Size()
}

// Close releases the native contour storage
func (c *Contours) Close() {
	if c == nil {
		return
	}
	c.Points.Close()
	c.Hierarchy.Close()
}
