package detection

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// SegmenterConfig controls the smoothing and morphology stages
type SegmenterConfig struct {
	BlurSize    int  // Box filter side (px)
	ErodeSize   int  // Erosion structuring element side (px)
	DilateSize  int  // Dilation structuring element side (px)
	Iterations  int  // Number of erosions, then the same number of dilations
	Diagnostics bool // Keep mask and morphology previews
}

// DefaultSegmenterConfig returns the reference pipeline parameters
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		BlurSize:   7,
		ErodeSize:  12,
		DilateSize: 24,
		Iterations: 2,
	}
}

// Validate checks the config
func (c SegmenterConfig) Validate() error {
	if c.BlurSize <= 0 || c.ErodeSize <= 0 || c.DilateSize <= 0 {
		return fmt.Errorf("kernel sizes must be positive (blur=%d erode=%d dilate=%d)", c.BlurSize, c.ErodeSize, c.DilateSize)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("morphology iterations must be positive, got %d", c.Iterations)
	}
	return nil
}

// Segmentation is the output of one Segment call
type Segmentation struct {
	// Rects are in contour discovery order, not sorted by size or position.
	Rects []image.Rectangle

	// Mask and Morph are only populated when diagnostics are enabled.
	Mask  gocv.Mat
	Morph gocv.Mat
}

// HasPreviews reports whether diagnostic previews were captured
func (s *Segmentation) HasPreviews() bool {
	return IsValidFrame(s.Mask) && IsValidFrame(s.Morph)
}

// Close releases preview mats
func (s *Segmentation) Close() {
	if s == nil {
		return
	}
	s.Mask.Close()
	s.Morph.Close()
}

// Segmenter turns a BGR frame into candidate bounding rectangles
type Segmenter struct {
	proc   Processor
	config SegmenterConfig
}

// NewSegmenter creates a segmenter over proc
func NewSegmenter(proc Processor, config SegmenterConfig) (*Segmenter, error) {
	if proc == nil {
		return nil, fmt.Errorf("segmenter requires a processor")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{proc: proc, config: config}, nil
}

// Segment runs blur -> HSV -> threshold -> erode xN -> dilate xN -> contours -> bounding rects.
// An empty mask yields an empty slice and no error.
func (s *Segmenter) Segment(frame gocv.Mat, r ColorRange) (*Segmentation, error) {
	blurred, err := s.proc.Smooth(frame, s.config.BlurSize)
	if err != nil {
		return nil, err
	}
	defer blurred.Close()

	hsv, err := s.proc.ConvertColorspace(blurred)
	if err != nil {
		return nil, err
	}
	defer hsv.Close()

	mask, err := s.proc.RangeThreshold(hsv, r)
	if err != nil {
		return nil, err
	}
	defer mask.Close()

	// Erosions all run before any dilation.
	morph := mask.Clone()
	defer func() { morph.Close() }()
	for i := 0; i < s.config.Iterations; i++ {
		next, err := s.proc.Erode(morph, s.config.ErodeSize)
		if err != nil {
			return nil, err
		}
		morph.Close()
		morph = next
	}
	for i := 0; i < s.config.Iterations; i++ {
		next, err := s.proc.Dilate(morph, s.config.DilateSize)
		if err != nil {
			return nil, err
		}
		morph.Close()
		morph = next
	}

	contours, err := s.proc.FindContours(morph)
	if err != nil {
		return nil, err
	}
	defer contours.Close()

	seg := &Segmentation{
		Rects: make([]image.Rectangle, 0, contours.Len()),
	}
	for i := 0; i < contours.Len(); i++ {
		seg.Rects = append(seg.Rects, s.proc.BoundingRect(contours.Points.At(i)))
	}

	if s.config.Diagnostics {
		seg.Mask = mask.Clone()
		seg.Morph = morph.Clone()
	}

	return seg, nil
}

// Config returns the segmenter configuration
func (s *Segmenter) Config() SegmenterConfig {
	return s.config
}

// IsValidFrame checks that a mat is allocated and has pixels
func IsValidFrame(frame gocv.Mat) bool {
	if frame.Ptr() == nil {
		return false
	}
	return frame.Rows() > 0 && frame.Cols() > 0 && frame.Channels() > 0
}
