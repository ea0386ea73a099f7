package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blobcam/detection"
	"blobcam/tracking"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blobcam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BLOBCAM_HOST", "")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
	assert.Equal(t, detection.DefaultColorRange(), cfg.ColorRange())
	assert.Equal(t, detection.DefaultSegmenterConfig(), cfg.SegmenterConfig())

	eng, err := cfg.EngineConfig()
	require.NoError(t, err)
	if diff := cmp.Diff(tracking.DefaultEngineConfig(), eng); diff != "" {
		t.Errorf("engine config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("BLOBCAM_HOST", "")
	t.Setenv("PORT", "")

	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
camera:
  index: 1
  fps: 10
color:
  lower: [0, 120, 70]
  upper: [10, 255, 255]
segmentation:
  diagnostics: true
tracking:
  selection: largest
output:
  dir: /tmp/out
  save_frames: true
  hourly_dirs: true
overlay:
  status: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, 1, cfg.Camera.Index)
	assert.Equal(t, 10.0, cfg.Camera.FPS)
	assert.Equal(t, [3]float64{0, 120, 70}, cfg.Color.Lower)
	assert.True(t, cfg.Segmentation.Diagnostics)
	assert.Equal(t, 7, cfg.Segmentation.BlurSize)
	assert.True(t, cfg.Output.HourlyDirs)
	assert.True(t, cfg.Overlay.Status)

	eng, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, tracking.SelectLargest, eng.Selection)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BLOBCAM_HOST", "127.0.0.1")
	t.Setenv("PORT", "7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.ServerAddress())
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("BLOBCAM_HOST", "")
	t.Setenv("PORT", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "camera:\n  fps: 0\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"negative fps", func(c *Config) { c.Camera.FPS = -1 }},
		{"camera index", func(c *Config) { c.Camera.Index = -2 }},
		{"inverted colour", func(c *Config) { c.Color.Lower[0] = 100; c.Color.Upper[0] = 50 }},
		{"kernel", func(c *Config) { c.Segmentation.ErodeSize = 0 }},
		{"selection", func(c *Config) { c.Tracking.Selection = "biggest" }},
		{"target", func(c *Config) { c.Tracking.TargetWidth = 0 }},
		{"save without dir", func(c *Config) { c.Output.SaveFrames = true; c.Output.Dir = "" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
