package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"blobcam/detection"
)

// FramePrefix and FrameExt name persisted frames: frame-1.png, frame-2.png, ...
const (
	FramePrefix = "frame-"
	FrameExt    = ".png"
)

// DiskWriter persists annotated frames to a directory. The counter starts at 1
// and only advances when a write succeeds.
type DiskWriter struct {
	dir      string
	hourly   bool
	previews bool
	next     int
	now      func() time.Time
}

// NewDiskWriter creates the output directory if needed.
// hourly groups files into YYYY-MM-DD_HHAM subdirectories; previews also writes mask and morphology images.
func NewDiskWriter(dir string, hourly, previews bool) (*DiskWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return &DiskWriter{
		dir:      dir,
		hourly:   hourly,
		previews: previews,
		next:     1,
		now:      time.Now,
	}, nil
}

func (w *DiskWriter) Name() string { return "disk" }

// Consume implements Consumer
func (w *DiskWriter) Consume(f *Frame) error {
	if !detection.IsValidFrame(f.Image) {
		return fmt.Errorf("write frame %d: %w", w.next, detection.ErrEmptyMat)
	}

	dir := w.dir
	if w.hourly {
		dir = filepath.Join(w.dir, HourlySubdir(w.now()))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create subdirectory %s: %w", dir, err)
		}
	}

	path := filepath.Join(dir, FrameFilename(w.next, ""))
	if !gocv.IMWrite(path, f.Image) {
		return fmt.Errorf("failed to render frame %d to %s", w.next, path)
	}

	if w.previews && f.HasPreviews() {
		if !gocv.IMWrite(filepath.Join(dir, FrameFilename(w.next, "mask")), f.Mask) {
			debugMsg("SINK", fmt.Sprintf("Failed to save mask preview for frame %d", w.next), f.SessionID)
		}
		if !gocv.IMWrite(filepath.Join(dir, FrameFilename(w.next, "morph")), f.Morph) {
			debugMsg("SINK", fmt.Sprintf("Failed to save morphology preview for frame %d", w.next), f.SessionID)
		}
	}

	w.next++
	return nil
}

// Written returns how many frames have been persisted
func (w *DiskWriter) Written() int {
	return w.next - 1
}

// FrameFilename returns frame-N.png, or frame-N-<suffix>.png for previews
func FrameFilename(n int, suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("%s%d%s", FramePrefix, n, FrameExt)
	}
	return fmt.Sprintf("%s%d-%s%s", FramePrefix, n, suffix, FrameExt)
}

// HourlySubdir names the subdirectory for t, e.g. 2025-01-01_03PM
func HourlySubdir(t time.Time) string {
	hour := t.Hour()
	hour12 := hour % 12
	if hour12 == 0 {
		hour12 = 12
	}
	ampm := "AM"
	if hour >= 12 {
		ampm = "PM"
	}
	return fmt.Sprintf("%s_%02d%s", t.Format("2006-01-02"), hour12, ampm)
}
