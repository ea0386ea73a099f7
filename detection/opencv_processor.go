package detection

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrEmptyMat is returned when a primitive is handed an empty image
var ErrEmptyMat = errors.New("empty mat")

// OpenCVProcessor implements Processor on top of gocv
type OpenCVProcessor struct {
	kernels  map[int]gocv.Mat // rectangular structuring elements by side length
	mu       sync.Mutex
	initTime time.Duration
}

// NewOpenCVProcessor creates a processor backed by the linked OpenCV library.
// Structuring elements for warmSizes are built up front and the time taken is
// reported as InitTime.
func NewOpenCVProcessor(warmSizes ...int) *OpenCVProcessor {
	start := time.Now()
	p := &OpenCVProcessor{
		kernels: make(map[int]gocv.Mat),
	}
	for _, size := range warmSizes {
		if _, err := p.kernel(size); err != nil {
			debugMsg("PROCESSOR", fmt.Sprintf("Skipping warm-up: %v", err))
		}
	}
	p.initTime = time.Since(start)
	debugMsg("PROCESSOR", fmt.Sprintf("OpenCV %s processor ready (%d kernels in %v)", gocv.OpenCVVersion(), len(p.kernels), p.initTime))
	return p
}

// Smooth applies a normalized box filter of kernel x kernel
func (p *OpenCVProcessor) Smooth(src gocv.Mat, kernel int) (gocv.Mat, error) {
	if !IsValidFrame(src) {
		return gocv.NewMat(), fmt.Errorf("smooth: %w", ErrEmptyMat)
	}
	if kernel <= 0 {
		return gocv.NewMat(), fmt.Errorf("smooth: invalid kernel size %d", kernel)
	}
	dst := gocv.NewMat()
	gocv.Blur(src, &dst, image.Pt(kernel, kernel))
	return dst, nil
}

// ConvertColorspace converts a BGR frame to HSV
func (p *OpenCVProcessor) ConvertColorspace(src gocv.Mat) (gocv.Mat, error) {
	if !IsValidFrame(src) {
		return gocv.NewMat(), fmt.Errorf("convert colorspace: %w", ErrEmptyMat)
	}
	if src.Channels() != 3 {
		return gocv.NewMat(), fmt.Errorf("convert colorspace: expected 3 channels, got %d", src.Channels())
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToHSV)
	return dst, nil
}

// RangeThreshold marks pixels inside r as foreground (255)
func (p *OpenCVProcessor) RangeThreshold(src gocv.Mat, r ColorRange) (gocv.Mat, error) {
	if !IsValidFrame(src) {
		return gocv.NewMat(), fmt.Errorf("range threshold: %w", ErrEmptyMat)
	}
	if err := r.Validate(); err != nil {
		return gocv.NewMat(), fmt.Errorf("range threshold: %w", err)
	}
	lower := gocv.NewScalar(r.Lower[0], r.Lower[1], r.Lower[2], 0)
	upper := gocv.NewScalar(r.Upper[0], r.Upper[1], r.Upper[2], 0)

	dst := gocv.NewMat()
	gocv.InRangeWithScalar(src, lower, upper, &dst)
	return dst, nil
}

// Erode shrinks foreground regions with a size x size rectangle
func (p *OpenCVProcessor) Erode(mask gocv.Mat, size int) (gocv.Mat, error) {
	kernel, err := p.kernel(size)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("erode: %w", err)
	}
	if !IsValidFrame(mask) {
		return gocv.NewMat(), fmt.Errorf("erode: %w", ErrEmptyMat)
	}
	dst := gocv.NewMat()
	gocv.Erode(mask, &dst, kernel)
	return dst, nil
}

// Dilate grows foreground regions with a size x size rectangle
func (p *OpenCVProcessor) Dilate(mask gocv.Mat, size int) (gocv.Mat, error) {
	kernel, err := p.kernel(size)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("dilate: %w", err)
	}
	if !IsValidFrame(mask) {
		return gocv.NewMat(), fmt.Errorf("dilate: %w", ErrEmptyMat)
	}
	dst := gocv.NewMat()
	gocv.Dilate(mask, &dst, kernel)
	return dst, nil
}

// FindContours extracts outer contours and their holes (two-level hierarchy)
func (p *OpenCVProcessor) FindContours(mask gocv.Mat) (*Contours, error) {
	if !IsValidFrame(mask) {
		return nil, fmt.Errorf("find contours: %w", ErrEmptyMat)
	}
	hierarchy := gocv.NewMat()
	points := gocv.FindContoursWithParams(mask, &hierarchy, gocv.RetrievalCComp, gocv.ChainApproxSimple)
	return &Contours{Points: points, Hierarchy: hierarchy}, nil
}

// BoundingRect returns the upright bounding box of a contour
func (p *OpenCVProcessor) BoundingRect(contour gocv.PointVector) image.Rectangle {
	return gocv.BoundingRect(contour)
}

// Close releases cached structuring elements
func (p *OpenCVProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for size, k := range p.kernels {
		k.Close()
		delete(p.kernels, size)
	}
	return nil
}

// Info returns information about the processor
func (p *OpenCVProcessor) Info() ProcessorInfo {
	return ProcessorInfo{
		Backend:  "OpenCV",
		Version:  gocv.OpenCVVersion(),
		InitTime: p.initTime,
	}
}

// kernel returns the cached rectangular structuring element for size
func (p *OpenCVProcessor) kernel(size int) (gocv.Mat, error) {
	if size <= 0 {
		return gocv.Mat{}, fmt.Errorf("invalid structuring element size %d", size)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if k, ok := p.kernels[size]; ok {
		return k, nil
	}
	k := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(size, size))
	p.kernels[size] = k
	return k, nil
}
