package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"blobcam/detection"
	"blobcam/tracking"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds the whole application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Camera       CameraConfig       `yaml:"camera"`
	Color        ColorConfig        `yaml:"color"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Tracking     TrackingConfig     `yaml:"tracking"`
	Output       OutputConfig       `yaml:"output"`
	Overlay      OverlayConfig      `yaml:"overlay"`
	Debug        DebugConfig        `yaml:"debug"`
}

// ServerConfig configures the HTTP controller API
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CameraConfig selects the frame source
type CameraConfig struct {
	Index     int     `yaml:"index"`      // Local device index
	StreamURL string  `yaml:"stream_url"` // Overrides Index when set (rtsp://, file path)
	FPS       float64 `yaml:"fps"`
	Autostart bool    `yaml:"autostart"`
}

// ColorConfig is the initial HSV band
type ColorConfig struct {
	Lower [3]float64 `yaml:"lower"`
	Upper [3]float64 `yaml:"upper"`
}

// SegmentationConfig controls blur and morphology
type SegmentationConfig struct {
	BlurSize    int  `yaml:"blur_size"`
	ErodeSize   int  `yaml:"erode_size"`
	DilateSize  int  `yaml:"dilate_size"`
	Iterations  int  `yaml:"iterations"`
	Diagnostics bool `yaml:"diagnostics"`
}

// TrackingConfig controls the decision engine
type TrackingConfig struct {
	TargetWidth     int    `yaml:"target_width"`
	TargetHeight    int    `yaml:"target_height"`
	MinWidth        int    `yaml:"min_width"`
	MinHeight       int    `yaml:"min_height"`
	MotionThreshold int    `yaml:"motion_threshold"`
	Selection       string `yaml:"selection"` // "last" or "largest"
}

// OutputConfig controls frame persistence
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	SaveFrames  bool   `yaml:"save_frames"`
	HourlyDirs  bool   `yaml:"hourly_dirs"`
	SavePreview bool   `yaml:"save_previews"`
}

// OverlayConfig toggles the optional overlays
type OverlayConfig struct {
	Status   bool `yaml:"status"`
	Terminal bool `yaml:"terminal"`
	Velocity bool `yaml:"velocity"`
}

// DebugConfig controls logging
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogDir  string `yaml:"log_dir"`
}

// Default returns the built-in configuration
func Default() *Config {
	color := detection.DefaultColorRange()
	seg := detection.DefaultSegmenterConfig()
	eng := tracking.DefaultEngineConfig()

	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // Disabled for MJPEG streaming
		},
		Camera: CameraConfig{
			Index: 0,
			FPS:   30,
		},
		Color: ColorConfig{Lower: color.Lower, Upper: color.Upper},
		Segmentation: SegmentationConfig{
			BlurSize:   seg.BlurSize,
			ErodeSize:  seg.ErodeSize,
			DilateSize: seg.DilateSize,
			Iterations: seg.Iterations,
		},
		Tracking: TrackingConfig{
			TargetWidth:     eng.TargetWidth,
			TargetHeight:    eng.TargetHeight,
			MinWidth:        eng.MinWidth,
			MinHeight:       eng.MinHeight,
			MotionThreshold: eng.MotionThreshold,
			Selection:       eng.Selection.String(),
		},
		Output: OutputConfig{
			Dir: "frames",
		},
		Debug: DebugConfig{
			LogDir: "/tmp/blobcam",
		},
	}
}

// Load reads path over the defaults (an empty path skips the file), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("BLOBCAM_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.StreamURL = getEnvOrDefault("BLOBCAM_STREAM_URL", c.Camera.StreamURL)
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Server.Port)
	}
	if c.Camera.Index < 0 {
		return fmt.Errorf("%w: camera index %d", ErrInvalid, c.Camera.Index)
	}
	if math.IsNaN(c.Camera.FPS) || math.IsInf(c.Camera.FPS, 0) || c.Camera.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %v", ErrInvalid, c.Camera.FPS)
	}
	if err := c.ColorRange().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.SegmenterConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	eng, err := c.EngineConfig()
	if err != nil {
		return err
	}
	if err := eng.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Output.SaveFrames && c.Output.Dir == "" {
		return fmt.Errorf("%w: save_frames requires output dir", ErrInvalid)
	}
	return nil
}

// ColorRange returns the initial colour band
func (c *Config) ColorRange() detection.ColorRange {
	return detection.ColorRange{Lower: c.Color.Lower, Upper: c.Color.Upper}
}

// SegmenterConfig returns the segmentation parameters
func (c *Config) SegmenterConfig() detection.SegmenterConfig {
	return detection.SegmenterConfig{
		BlurSize:    c.Segmentation.BlurSize,
		ErodeSize:   c.Segmentation.ErodeSize,
		DilateSize:  c.Segmentation.DilateSize,
		Iterations:  c.Segmentation.Iterations,
		Diagnostics: c.Segmentation.Diagnostics,
	}
}

// EngineConfig returns the decision engine parameters
func (c *Config) EngineConfig() (tracking.EngineConfig, error) {
	sel, ok := tracking.ParseSelection(c.Tracking.Selection)
	if !ok {
		return tracking.EngineConfig{}, fmt.Errorf("%w: unknown selection %q", ErrInvalid, c.Tracking.Selection)
	}
	return tracking.EngineConfig{
		TargetWidth:     c.Tracking.TargetWidth,
		TargetHeight:    c.Tracking.TargetHeight,
		MinWidth:        c.Tracking.MinWidth,
		MinHeight:       c.Tracking.MinHeight,
		MotionThreshold: c.Tracking.MotionThreshold,
		Selection:       sel,
	}, nil
}

// ServerAddress returns the listen address
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
