package api

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"blobcam/acquisition"
	"blobcam/config"
	"blobcam/detection"
	"blobcam/sink"
	"blobcam/tracking"
)

// Global debug function for api package
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

// Controller is the tracker surface the API drives
type Controller interface {
	Start(cameraIndex int, fps float64) (string, error)
	Stop() error
	Running() bool
	Session() string
	State() tracking.TrackerState
	Velocity() image.Point
	ColorRange() detection.ColorRange
	SetColorRange(r detection.ColorRange) error
	Stats() acquisition.Stats
}

// FrameSource supplies the latest annotated JPEG
type FrameSource interface {
	Latest() (sink.CachedFrame, bool)
}

// Server is the HTTP controller API
type Server struct {
	config     *config.Config
	controller Controller
	frames     FrameSource
	router     *gin.Engine
	httpServer *http.Server
}

// New creates the server and registers its routes
func New(cfg *config.Config, controller Controller, frames FrameSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:     cfg,
		controller: controller,
		frames:     frames,
		router:     router,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	h := &handler{config: s.config, controller: s.controller, frames: s.frames}

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	api.GET("/status", h.GetStatus)
	api.GET("/color-range", h.GetColorRange)
	api.PUT("/color-range", h.PutColorRange)
	api.POST("/start", h.StartTracking)
	api.POST("/stop", h.StopTracking)
	api.GET("/frame.jpg", h.GetFrame)
	api.GET("/stream.mjpeg", h.StreamFrames)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		debugMsg("API", fmt.Sprintf("HTTP server listening on %s", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	return s.Shutdown()
}

// Shutdown stops the server, waiting up to 5 seconds for open requests
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	debugMsg("API", "HTTP server stopped")
	return nil
}
