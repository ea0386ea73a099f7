package sink

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"blobcam/detection"
)

// CachedFrame is a JPEG snapshot of an annotated frame
type CachedFrame struct {
	JPEG      []byte
	Sequence  uint64
	Timestamp time.Time
	SessionID string
}

// FrameCache keeps the most recent annotated frame encoded as JPEG
type FrameCache struct {
	mu     sync.RWMutex
	latest *CachedFrame
}

// NewFrameCache creates an empty cache
func NewFrameCache() *FrameCache {
	return &FrameCache{}
}

func (c *FrameCache) Name() string { return "frame-cache" }

// Consume implements Consumer
func (c *FrameCache) Consume(f *Frame) error {
	if !detection.IsValidFrame(f.Image) {
		return fmt.Errorf("encode frame %d: %w", f.Sequence, detection.ErrEmptyMat)
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.Image)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Sequence, err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	c.mu.Lock()
	c.latest = &CachedFrame{
		JPEG:      data,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
		SessionID: f.SessionID,
	}
	c.mu.Unlock()
	return nil
}

// Latest returns the newest cached frame, or false if nothing was cached yet
func (c *FrameCache) Latest() (CachedFrame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return CachedFrame{}, false
	}
	return *c.latest, true
}
