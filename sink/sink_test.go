package sink

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testFrame(seq uint64) *Frame {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, image.Rect(10, 10, 50, 50), color.RGBA{0, 255, 0, 0}, -1)
	return &Frame{
		Image:     img,
		Status:    "object: present",
		Sequence:  seq,
		Timestamp: time.Now(),
		SessionID: "test",
	}
}

func TestFrameFilename(t *testing.T) {
	assert.Equal(t, "frame-1.png", FrameFilename(1, ""))
	assert.Equal(t, "frame-42.png", FrameFilename(42, ""))
	assert.Equal(t, "frame-3-mask.png", FrameFilename(3, "mask"))
}

func TestHourlySubdir(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC), "2025-01-01_12AM"},
		{time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC), "2025-01-01_03AM"},
		{time.Date(2025, 1, 1, 12, 30, 0, 0, time.UTC), "2025-01-01_12PM"},
		{time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), "2025-12-31_11PM"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HourlySubdir(tt.at))
	}
}

func TestDiskWriterNumbersFrames(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDiskWriter(dir, false, false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f := testFrame(uint64(i))
		require.NoError(t, w.Consume(f))
		f.Close()
	}

	for _, name := range []string{"frame-1.png", "frame-2.png", "frame-3.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, 3, w.Written())
}

func TestDiskWriterHourlyWithPreviews(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDiskWriter(dir, true, true)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC) }

	f := testFrame(1)
	defer f.Close()
	f.Mask = gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC1)
	f.Morph = gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC1)

	require.NoError(t, w.Consume(f))

	sub := filepath.Join(dir, "2025-06-01_03PM")
	for _, name := range []string{"frame-1.png", "frame-1-mask.png", "frame-1-morph.png"} {
		_, err := os.Stat(filepath.Join(sub, name))
		assert.NoError(t, err, name)
	}
}

func TestDiskWriterFailureKeepsCounter(t *testing.T) {
	w, err := NewDiskWriter(t.TempDir(), false, false)
	require.NoError(t, err)

	empty := &Frame{Image: gocv.NewMat()}
	defer empty.Close()
	assert.Error(t, w.Consume(empty))
	assert.Equal(t, 0, w.Written())

	_, err = NewDiskWriter("", false, false)
	assert.Error(t, err)
}

func TestFrameCache(t *testing.T) {
	c := NewFrameCache()
	_, ok := c.Latest()
	assert.False(t, ok)

	f := testFrame(9)
	defer f.Close()
	require.NoError(t, c.Consume(f))

	got, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(9), got.Sequence)
	require.Greater(t, len(got.JPEG), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, got.JPEG[:2], "JPEG start-of-image marker")

	decoded, err := gocv.IMDecode(got.JPEG, gocv.IMReadColor)
	require.NoError(t, err)
	defer decoded.Close()
	assert.Equal(t, 120, decoded.Rows())
	assert.Equal(t, 160, decoded.Cols())
}

func TestStatusLogger(t *testing.T) {
	var logged []string
	SetDebugFunction(func(component, message string, _ ...string) {
		if component == "STATUS" {
			logged = append(logged, message)
		}
	})
	defer SetDebugFunction(nil)

	l := NewStatusLogger()
	for _, s := range []string{"a", "a", "b", "b", "a"} {
		require.NoError(t, l.Consume(&Frame{Status: s}))
	}
	assert.Equal(t, []string{"a", "b", "a"}, logged)
	assert.Equal(t, "a", l.Last())
}

type failingConsumer struct{ calls int }

func (c *failingConsumer) Name() string { return "failing" }
func (c *failingConsumer) Consume(*Frame) error {
	c.calls++
	return assert.AnError
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &failingConsumer{}
	status := NewStatusLogger()
	consume := Dispatch(bad, status)

	consume(&Frame{Status: "hello"})
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, "hello", status.Last())
}
