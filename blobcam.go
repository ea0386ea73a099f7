package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"blobcam/acquisition"
	"blobcam/api"
	"blobcam/capture"
	"blobcam/config"
	"blobcam/detection"
	"blobcam/overlay"
	"blobcam/pipeline"
	"blobcam/sink"
	"blobcam/tracking"
)

// Command line flags. Only flags given explicitly override the config file.
var (
	configPath      = flag.String("config", "", "Path to YAML config file")
	cameraIndex     = flag.Int("camera", 0, "Camera device index")
	streamURL       = flag.String("stream", "", "Stream URL or video file to read instead of a local device")
	fps             = flag.Float64("fps", 30, "Acquisition rate in frames per second")
	host            = flag.String("host", "0.0.0.0", "HTTP listen host")
	port            = flag.Int("port", 8080, "HTTP listen port")
	debugMode       = flag.Bool("debug", false, "Enable per-session debug logs")
	logDir          = flag.String("log-dir", "/tmp/blobcam", "Directory for per-session debug logs")
	diagnostics     = flag.Bool("diagnostics", false, "Keep mask and morphology previews for every frame")
	outputDir       = flag.String("output-dir", "frames", "Directory for saved frames")
	saveFrames      = flag.Bool("save-frames", false, "Save annotated frames to disk")
	hourlyDirs      = flag.Bool("hourly-dirs", false, "Group saved frames into hourly subdirectories")
	savePreviews    = flag.Bool("save-previews", false, "Save mask and morphology previews next to each frame")
	statusOverlay   = flag.Bool("status-overlay", false, "Show status panel overlay")
	terminalOverlay = flag.Bool("terminal-overlay", false, "Show debug terminal overlay")
	velocityOverlay = flag.Bool("velocity-overlay", false, "Show velocity arrow overlay")
	selection       = flag.String("selection", "last", "Candidate selection rule: last or largest")
	autostart       = flag.Bool("autostart", false, "Start tracking immediately")
)

// Global debug logger
var globalDebugLogger *DebugLogger

// Global debug function that uses the unified logger
func debugMsg(component, message string, sessionID ...string) {
	if globalDebugLogger != nil {
		globalDebugLogger.debugMsg(component, message, sessionID...)
	} else {
		fmt.Printf("[%s] %s\n", component, message)
	}
}

// applyFlags copies explicitly set flags over cfg
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "camera":
			cfg.Camera.Index = *cameraIndex
		case "stream":
			cfg.Camera.StreamURL = *streamURL
		case "fps":
			cfg.Camera.FPS = *fps
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "debug":
			cfg.Debug.Enabled = *debugMode
		case "log-dir":
			cfg.Debug.LogDir = *logDir
		case "diagnostics":
			cfg.Segmentation.Diagnostics = *diagnostics
		case "output-dir":
			cfg.Output.Dir = *outputDir
		case "save-frames":
			cfg.Output.SaveFrames = *saveFrames
		case "hourly-dirs":
			cfg.Output.HourlyDirs = *hourlyDirs
		case "save-previews":
			cfg.Output.SavePreview = *savePreviews
		case "status-overlay":
			cfg.Overlay.Status = *statusOverlay
		case "terminal-overlay":
			cfg.Overlay.Terminal = *terminalOverlay
		case "velocity-overlay":
			cfg.Overlay.Velocity = *velocityOverlay
		case "selection":
			cfg.Tracking.Selection = *selection
		case "autostart":
			cfg.Camera.Autostart = *autostart
		}
	})
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	globalDebugLogger = NewDebugLogger(cfg.Debug.Enabled, cfg.Debug.LogDir)
	defer globalDebugLogger.Close()

	detection.SetDebugFunction(debugMsg)
	tracking.SetDebugFunction(debugMsg)
	acquisition.SetDebugFunction(debugMsg)
	capture.SetDebugFunction(debugMsg)
	sink.SetDebugFunction(debugMsg)
	overlay.SetDebugFunction(debugMsg)
	pipeline.SetDebugFunction(debugMsg)
	api.SetDebugFunction(debugMsg)

	if err := run(cfg); err != nil {
		debugMsg("MAIN", fmt.Sprintf("Exiting with error: %v", err))
		globalDebugLogger.Close()
		os.Exit(1)
	}
}

// run wires the components together and serves until SIGINT or SIGTERM
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc := detection.NewOpenCVProcessor(cfg.Segmentation.ErodeSize, cfg.Segmentation.DilateSize)
	defer proc.Close()

	segmenter, err := detection.NewSegmenter(proc, cfg.SegmenterConfig())
	if err != nil {
		return fmt.Errorf("segmenter: %w", err)
	}

	engineConfig, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engine, err := tracking.NewEngine(engineConfig)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	renderer := overlay.NewRenderer(overlay.Options{
		StatusPanel:     cfg.Overlay.Status,
		TerminalOverlay: cfg.Overlay.Terminal,
		VelocityArrow:   cfg.Overlay.Velocity,
	}, globalDebugLogger)

	colors, err := detection.NewColorStore(cfg.ColorRange())
	if err != nil {
		return fmt.Errorf("color range: %w", err)
	}

	camera := capture.NewCamera(cfg.Camera.StreamURL)

	frameCache := sink.NewFrameCache()
	consumers := []sink.Consumer{sink.NewStatusLogger(), frameCache}
	if cfg.Output.SaveFrames {
		writer, err := sink.NewDiskWriter(cfg.Output.Dir, cfg.Output.HourlyDirs, cfg.Output.SavePreview)
		if err != nil {
			return fmt.Errorf("frame writer: %w", err)
		}
		consumers = append(consumers, writer)
	}

	handoff := sink.NewHandoff(sink.ReleaseFrame)
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		handoff.Run(ctx, sink.Dispatch(consumers...))
	}()

	tracker := pipeline.NewTracker(camera, segmenter, engine, renderer, colors, handoff.Publish)
	tracker.OnSessionEnd(globalDebugLogger.CloseSession)

	defer func() {
		if err := tracker.Stop(); err != nil {
			debugMsg("MAIN", fmt.Sprintf("Stop: %v", err))
		}
		handoff.Close()
		<-sinkDone
		stats := handoff.Stats()
		debugMsg("MAIN", fmt.Sprintf("Frames published: %d, dropped: %d, delivered: %d",
			stats.Published, stats.Dropped, stats.Delivered))
	}()

	if cfg.Camera.Autostart {
		session, err := tracker.Start(cfg.Camera.Index, cfg.Camera.FPS)
		if err != nil && !errors.Is(err, acquisition.ErrDeviceUnavailable) {
			return fmt.Errorf("autostart: %w", err)
		}
		if err != nil {
			debugMsg("MAIN", fmt.Sprintf("Autostart failed, waiting for API start: %v", err))
		} else {
			debugMsg("MAIN", "Autostarted tracking", session)
		}
	}

	server := api.New(cfg, tracker, frameCache)
	debugMsg("MAIN", fmt.Sprintf("Blob tracker ready on %s", cfg.ServerAddress()))
	return server.Run(ctx)
}
