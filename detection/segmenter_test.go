package detection

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// recordingProcessor logs the order of primitive calls and returns fixed contours
type recordingProcessor struct {
	calls    []string
	contours [][]image.Point
	failAt   string
}

func (p *recordingProcessor) step(name string) (gocv.Mat, error) {
	p.calls = append(p.calls, name)
	if p.failAt == name {
		return gocv.NewMat(), errors.New(name + " failed")
	}
	return gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1), nil
}

func (p *recordingProcessor) Smooth(src gocv.Mat, kernel int) (gocv.Mat, error) {
	return p.step("smooth")
}

func (p *recordingProcessor) ConvertColorspace(src gocv.Mat) (gocv.Mat, error) {
	return p.step("hsv")
}

func (p *recordingProcessor) RangeThreshold(src gocv.Mat, r ColorRange) (gocv.Mat, error) {
	return p.step("threshold")
}

func (p *recordingProcessor) Erode(mask gocv.Mat, size int) (gocv.Mat, error) {
	return p.step("erode")
}

func (p *recordingProcessor) Dilate(mask gocv.Mat, size int) (gocv.Mat, error) {
	return p.step("dilate")
}

func (p *recordingProcessor) FindContours(mask gocv.Mat) (*Contours, error) {
	p.calls = append(p.calls, "contours")
	return &Contours{
		Points:    gocv.NewPointsVectorFromPoints(p.contours),
		Hierarchy: gocv.NewMat(),
	}, nil
}

func (p *recordingProcessor) BoundingRect(contour gocv.PointVector) image.Rectangle {
	pts := contour.ToPoints()
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, pt := range pts[1:] {
		r = r.Union(image.Rectangle{Min: pt, Max: pt})
	}
	return r
}

func (p *recordingProcessor) Close() error { return nil }

func (p *recordingProcessor) Info() ProcessorInfo { return ProcessorInfo{Backend: "recording"} }

func TestSegmenterStageOrder(t *testing.T) {
	proc := &recordingProcessor{
		contours: [][]image.Point{
			{{10, 10}, {30, 10}, {30, 40}, {10, 40}},
			{{100, 5}, {160, 5}, {160, 25}},
		},
	}
	seg, err := NewSegmenter(proc, DefaultSegmenterConfig())
	require.NoError(t, err)

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out, err := seg.Segment(frame, DefaultColorRange())
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, []string{"smooth", "hsv", "threshold", "erode", "erode", "dilate", "dilate", "contours"}, proc.calls)
	assert.Equal(t, []image.Rectangle{
		image.Rect(10, 10, 30, 40),
		image.Rect(100, 5, 160, 25),
	}, out.Rects, "rects keep contour discovery order")
	assert.False(t, out.HasPreviews())
}

func TestSegmenterPropagatesErrors(t *testing.T) {
	for _, stage := range []string{"smooth", "hsv", "threshold", "erode", "dilate"} {
		t.Run(stage, func(t *testing.T) {
			proc := &recordingProcessor{failAt: stage}
			seg, err := NewSegmenter(proc, DefaultSegmenterConfig())
			require.NoError(t, err)

			frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
			defer frame.Close()

			out, err := seg.Segment(frame, DefaultColorRange())
			assert.Error(t, err)
			assert.Nil(t, out)
			assert.NotContains(t, proc.calls, "contours")
		})
	}
}

func TestSegmenterDiagnostics(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.Diagnostics = true
	seg, err := NewSegmenter(&recordingProcessor{}, cfg)
	require.NoError(t, err)

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out, err := seg.Segment(frame, DefaultColorRange())
	require.NoError(t, err)
	defer out.Close()

	assert.Empty(t, out.Rects)
	assert.True(t, out.HasPreviews())
}

func TestSegmenterConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSegmenterConfig().Validate())

	cfg := DefaultSegmenterConfig()
	cfg.Iterations = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultSegmenterConfig()
	cfg.BlurSize = -3
	_, err := NewSegmenter(&recordingProcessor{}, cfg)
	assert.Error(t, err)

	_, err = NewSegmenter(nil, DefaultSegmenterConfig())
	assert.Error(t, err)
}

func blackFrame() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
}

func TestOpenCVSegmentGreenBlob(t *testing.T) {
	proc := NewOpenCVProcessor()
	defer proc.Close()

	cfg := DefaultSegmenterConfig()
	cfg.Diagnostics = true
	seg, err := NewSegmenter(proc, cfg)
	require.NoError(t, err)

	frame := blackFrame()
	defer frame.Close()
	blob := image.Rect(50, 200, 150, 260)
	gocv.Rectangle(&frame, blob, color.RGBA{0, 255, 0, 0}, -1)

	out, err := seg.Segment(frame, DefaultColorRange())
	require.NoError(t, err)
	defer out.Close()

	require.Len(t, out.Rects, 1)
	got := out.Rects[0]
	assert.InDelta(t, blob.Min.X, got.Min.X, 20)
	assert.InDelta(t, blob.Min.Y, got.Min.Y, 20)
	assert.InDelta(t, blob.Max.X, got.Max.X, 20)
	assert.InDelta(t, blob.Max.Y, got.Max.Y, 20)

	require.True(t, out.HasPreviews())
	assert.Equal(t, 1, out.Mask.Channels())
	assert.Equal(t, frame.Rows(), out.Morph.Rows())
}

func TestOpenCVSegmentNoMatch(t *testing.T) {
	proc := NewOpenCVProcessor()
	defer proc.Close()
	seg, err := NewSegmenter(proc, DefaultSegmenterConfig())
	require.NoError(t, err)

	frame := blackFrame()
	defer frame.Close()

	out, err := seg.Segment(frame, DefaultColorRange())
	require.NoError(t, err)
	defer out.Close()
	assert.Empty(t, out.Rects)
}

func TestOpenCVSegmentSpeckRemoved(t *testing.T) {
	proc := NewOpenCVProcessor()
	defer proc.Close()
	seg, err := NewSegmenter(proc, DefaultSegmenterConfig())
	require.NoError(t, err)

	frame := blackFrame()
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(300, 300, 306, 306), color.RGBA{0, 255, 0, 0}, -1)

	out, err := seg.Segment(frame, DefaultColorRange())
	require.NoError(t, err)
	defer out.Close()
	assert.Empty(t, out.Rects, "erosion removes blobs smaller than the structuring element")
}

func TestOpenCVProcessorRejectsEmptyInput(t *testing.T) {
	proc := NewOpenCVProcessor()
	defer proc.Close()

	empty := gocv.NewMat()
	defer empty.Close()

	_, err := proc.Smooth(empty, 7)
	assert.ErrorIs(t, err, ErrEmptyMat)
	_, err = proc.ConvertColorspace(empty)
	assert.ErrorIs(t, err, ErrEmptyMat)
	_, err = proc.FindContours(empty)
	assert.ErrorIs(t, err, ErrEmptyMat)

	var zero gocv.Mat
	_, err = proc.Smooth(zero, 7)
	assert.ErrorIs(t, err, ErrEmptyMat)
}

func TestOpenCVRangeThresholdAcceptsAnyValidRange(t *testing.T) {
	proc := NewOpenCVProcessor()
	defer proc.Close()

	frame := blackFrame()
	defer frame.Close()

	for _, r := range []ColorRange{
		DefaultColorRange(),
		{Upper: [3]float64{MaxHue, MaxSaturation, MaxValue}},
		{Lower: [3]float64{MaxHue, MaxSaturation, MaxValue}, Upper: [3]float64{MaxHue, MaxSaturation, MaxValue}},
	} {
		mask, err := proc.RangeThreshold(frame, r)
		require.NoError(t, err)
		assert.Equal(t, frame.Rows(), mask.Rows())
		mask.Close()
	}

	_, err := proc.RangeThreshold(frame, ColorRange{Lower: [3]float64{10, 0, 0}, Upper: [3]float64{5, 0, 0}})
	assert.ErrorIs(t, err, ErrInvalidColorRange)
}

func TestOpenCVProcessorInfo(t *testing.T) {
	proc := NewOpenCVProcessor()
	defer proc.Close()
	info := proc.Info()
	assert.Equal(t, "OpenCV", info.Backend)
	assert.NotEmpty(t, info.Version)
}

func TestOpenCVProcessorWarmsKernels(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	proc := NewOpenCVProcessor(cfg.ErodeSize, cfg.DilateSize, 0)
	defer proc.Close()

	assert.Len(t, proc.kernels, 2)
	assert.Positive(t, proc.Info().InitTime)

	k, err := proc.kernel(cfg.ErodeSize)
	require.NoError(t, err)
	assert.Equal(t, cfg.ErodeSize, k.Rows())
	assert.Equal(t, cfg.ErodeSize, k.Cols())
}
