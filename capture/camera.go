package capture

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ErrClosed is returned by Read when the camera is not open
var ErrClosed = errors.New("camera is closed")

// Global debug function for capture package
var debugMsgFunc func(string, string, ...string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(string, string, ...string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string, sessionID ...string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message, sessionID...)
	}
}

// videoCapture is the part of gocv.VideoCapture the camera uses
type videoCapture interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Set(prop gocv.VideoCaptureProperties, param float64)
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// Camera wraps a gocv VideoCapture. It opens a local device by index, or the
// stream URL when one is configured (the index is then ignored).
//
// mu is never held across a blocking read. A capture closed while a read is in
// flight is retired and released by the reader once the read returns.
type Camera struct {
	mu        sync.Mutex
	webcam    videoCapture
	reading   videoCapture   // capture with a read in flight
	retired   []videoCapture // closed while reading
	streamURL string
	index     int
	width     int
	height    int
}

// NewCamera creates a closed camera. streamURL may be empty.
func NewCamera(streamURL string) *Camera {
	return &Camera{streamURL: streamURL, index: -1}
}

// Open opens the device. Opening an already open camera reopens it.
func (c *Camera) Open(index int) error {
	var (
		webcam *gocv.VideoCapture
		err    error
	)
	if c.streamURL != "" {
		// Low latency options for RTSP sources
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;tcp|buffer_size;65536|stimeout;5000000")
		debugMsg("CAMERA", fmt.Sprintf("Opening stream: %s", c.streamURL))
		webcam, err = gocv.VideoCaptureFile(c.streamURL)
	} else {
		debugMsg("CAMERA", fmt.Sprintf("Opening device %d", index))
		webcam, err = gocv.VideoCaptureDevice(index)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()

	if err != nil {
		if webcam != nil {
			webcam.Close()
		}
		return fmt.Errorf("open camera %d: %w", index, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return fmt.Errorf("open camera %d: device did not open", index)
	}

	// Keep only the newest frame in the driver queue
	webcam.Set(gocv.VideoCaptureBufferSize, 1)

	c.webcam = webcam
	c.index = index
	c.width = int(webcam.Get(gocv.VideoCaptureFrameWidth))
	c.height = int(webcam.Get(gocv.VideoCaptureFrameHeight))
	debugMsg("CAMERA", fmt.Sprintf("Camera %d opened (%dx%d)", index, c.width, c.height))
	return nil
}

// Read grabs one frame. A device that yields nothing, or yields a frame that is
// not 8-bit BGR, returns an empty Mat and no error. The caller owns the Mat.
// A camera closed during the read returns ErrClosed.
func (c *Camera) Read() (gocv.Mat, error) {
	c.mu.Lock()
	webcam := c.webcam
	if webcam == nil {
		c.mu.Unlock()
		return gocv.NewMat(), ErrClosed
	}
	c.reading = webcam
	c.mu.Unlock()

	img := gocv.NewMat()
	ok := webcam.Read(&img)

	if c.finishRead(webcam) {
		img.Close()
		return gocv.NewMat(), ErrClosed
	}

	if !ok || img.Empty() {
		return img, nil
	}
	if img.Type() != gocv.MatTypeCV8UC3 || img.Channels() != 3 {
		debugMsg("CAMERA", fmt.Sprintf("Dropping frame with unexpected type %v", img.Type()))
		img.Close()
		return gocv.NewMat(), nil
	}
	return img, nil
}

// finishRead clears the in-flight mark and releases webcam if it was closed
// meanwhile. It reports whether that happened.
func (c *Camera) finishRead(webcam videoCapture) bool {
	c.mu.Lock()
	if c.reading == webcam {
		c.reading = nil
	}
	retired := false
	for i, r := range c.retired {
		if r == webcam {
			c.retired = append(c.retired[:i], c.retired[i+1:]...)
			retired = true
			break
		}
	}
	c.mu.Unlock()

	if retired {
		if err := webcam.Close(); err != nil {
			debugMsg("CAMERA", fmt.Sprintf("Error releasing camera after read: %v", err))
		}
		debugMsg("CAMERA", "Camera released after in-flight read")
	}
	return retired
}

// Close releases the device without waiting for an in-flight read.
// Closing a closed camera does nothing.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Camera) closeLocked() error {
	if c.webcam == nil {
		return nil
	}
	webcam := c.webcam
	c.webcam = nil

	if webcam == c.reading {
		c.retired = append(c.retired, webcam)
		debugMsg("CAMERA", fmt.Sprintf("Camera %d closed, release deferred until read returns", c.index))
		return nil
	}

	err := webcam.Close()
	debugMsg("CAMERA", fmt.Sprintf("Camera %d released", c.index))
	if err != nil {
		return fmt.Errorf("close camera %d: %w", c.index, err)
	}
	return nil
}

// IsOpen reports whether the device is currently open
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.webcam != nil
}

// Size returns the frame size the driver reported when the device was opened
func (c *Camera) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}
