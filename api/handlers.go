package api

import (
	"errors"
	"image"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"blobcam/acquisition"
	"blobcam/config"
	"blobcam/detection"
	"blobcam/tracking"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is returned by /api/status
type StatusResponse struct {
	Running    bool                  `json:"running"`
	SessionID  string                `json:"session_id,omitempty"`
	State      tracking.TrackerState `json:"state"`
	Direction  string                `json:"direction"`
	Mode       string                `json:"mode"`
	Motion     string                `json:"motion"`
	Velocity   image.Point           `json:"velocity"`
	ColorRange detection.ColorRange  `json:"color_range"`
	Stats      acquisition.Stats     `json:"stats"`
	Timestamp  time.Time             `json:"timestamp"`
}

// StartRequest is the optional body of POST /api/start; omitted fields use the configured defaults
type StartRequest struct {
	Camera *int     `json:"camera"`
	FPS    *float64 `json:"fps"`
}

// StartResponse is returned by a successful start
type StartResponse struct {
	SessionID string  `json:"session_id"`
	Camera    int     `json:"camera"`
	FPS       float64 `json:"fps"`
}

// StopResponse is returned by POST /api/stop
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Warning string `json:"warning,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type handler struct {
	config     *config.Config
	controller Controller
	frames     FrameSource
}

func respondError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

// HealthCheck reports that the process is serving
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// GetStatus reports the tracker state
func (h *handler) GetStatus(c *gin.Context) {
	state := h.controller.State()
	c.JSON(http.StatusOK, StatusResponse{
		Running:    h.controller.Running(),
		SessionID:  h.controller.Session(),
		State:      state,
		Direction:  state.Direction.String(),
		Mode:       state.Mode.String(),
		Motion:     state.Motion.String(),
		Velocity:   h.controller.Velocity(),
		ColorRange: h.controller.ColorRange(),
		Stats:      h.controller.Stats(),
		Timestamp:  time.Now(),
	})
}

// GetColorRange returns the live colour band
func (h *handler) GetColorRange(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.ColorRange())
}

// PutColorRange replaces the live colour band; the next cycle uses it
func (h *handler) PutColorRange(c *gin.Context) {
	var r detection.ColorRange
	if err := c.ShouldBindJSON(&r); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.controller.SetColorRange(r); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_color_range", err)
		return
	}
	c.JSON(http.StatusOK, h.controller.ColorRange())
}

// StartTracking opens the camera and starts the acquisition loop
func (h *handler) StartTracking(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	camera := h.config.Camera.Index
	if req.Camera != nil {
		camera = *req.Camera
	}
	fps := h.config.Camera.FPS
	if req.FPS != nil {
		fps = *req.FPS
	}

	session, err := h.controller.Start(camera, fps)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, StartResponse{SessionID: session, Camera: camera, FPS: fps})
	case errors.Is(err, acquisition.ErrConfiguration):
		respondError(c, http.StatusBadRequest, "invalid_configuration", err)
	case errors.Is(err, acquisition.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "already_running", err)
	case errors.Is(err, acquisition.ErrDeviceUnavailable):
		respondError(c, http.StatusServiceUnavailable, "device_unavailable", err)
	default:
		respondError(c, http.StatusInternalServerError, "start_failed", err)
	}
}

// StopTracking stops the loop and releases the camera. A shutdown timeout is
// reported as a warning since the camera is released anyway.
func (h *handler) StopTracking(c *gin.Context) {
	err := h.controller.Stop()
	switch {
	case err == nil:
		c.JSON(http.StatusOK, StopResponse{Stopped: true})
	case errors.Is(err, acquisition.ErrShutdownTimeout):
		c.JSON(http.StatusOK, StopResponse{Stopped: true, Warning: err.Error()})
	default:
		respondError(c, http.StatusInternalServerError, "stop_failed", err)
	}
}

// GetFrame returns the latest annotated frame as JPEG
func (h *handler) GetFrame(c *gin.Context) {
	frame, ok := h.frames.Latest()
	if !ok {
		respondError(c, http.StatusNotFound, "no_frame", errors.New("no frame has been captured yet"))
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Frame-Sequence", strconv.FormatUint(frame.Sequence, 10))
	c.Data(http.StatusOK, "image/jpeg", frame.JPEG)
}

// StreamFrames serves annotated frames as an MJPEG stream until the client leaves
func (h *handler) StreamFrames(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	var lastSeq uint64
	for {
		select {
		case <-clientGone:
			return
		case <-ticker.C:
		}

		frame, ok := h.frames.Latest()
		if !ok || frame.Sequence == lastSeq {
			continue
		}
		lastSeq = frame.Sequence

		if _, err := writer.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			return
		}
		if _, err := writer.Write(frame.JPEG); err != nil {
			return
		}
		if _, err := writer.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

const streamPollInterval = 20 * time.Millisecond
