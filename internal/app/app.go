// Package app runs local camera capture: motion-gated frames go through the
// holistic detector into one recognition session.
package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/signlearn/internal/capture"
	"github.com/ayusman/signlearn/internal/detector/holistic"
	"github.com/ayusman/signlearn/internal/pipeline"
)

// Config holds configuration options for the application.
type Config struct {
	// Camera overrides the device camera built from CameraID.
	Camera          capture.Camera
	CameraID        int
	MotionThreshold float64
	IdleTimeout     time.Duration

	// Detector overrides the holistic subprocess; a mock is used when neither is available.
	Detector holistic.Detector

	Predictor  pipeline.Predictor
	WindowSize int
	Target     string
	Sink       pipeline.Sink

	// Preview, when set, receives every captured frame as JPEG.
	Preview *capture.Preview
	Logger  *slog.Logger
}

// App is the local capture loop feeding one camera session.
type App struct {
	camera   capture.Camera
	motion   *capture.MotionDetector
	activity *capture.Activity
	preview  *capture.Preview
	session  *pipeline.Session
	logger   *slog.Logger

	mu       sync.RWMutex
	detector holistic.Detector
	enabled  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates an App and its session with processing enabled. The camera is
// not opened until Start.
func New(cfg Config) (*App, error) {
	if cfg.Predictor == nil {
		return nil, errors.New("app: predictor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	session, err := pipeline.New(pipeline.Config{
		Source:     pipeline.SourceCamera,
		Target:     cfg.Target,
		WindowSize: cfg.WindowSize,
		Predictor:  cfg.Predictor,
		Sink:       cfg.Sink,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	camera := cfg.Camera
	if camera == nil {
		camera = capture.NewCamera(capture.DefaultConfig(cfg.CameraID))
	}

	a := &App{
		camera:   camera,
		motion:   capture.NewMotionDetector(cfg.MotionThreshold),
		activity: capture.NewActivity(cfg.IdleTimeout),
		preview:  cfg.Preview,
		session:  session,
		logger:   logger,
		detector: cfg.Detector,
		enabled:  true,
	}

	if a.detector == nil {
		if hd, err := holistic.NewProcess(holistic.DefaultConfig(), logger); err == nil {
			a.detector = hd
			logger.Info("using MediaPipe holistic detection")
		} else {
			logger.Warn("MediaPipe holistic not available, using mock detector", "error", err)
			a.detector = holistic.NewMock()
		}
	}

	return a, nil
}

// SetEnabled enables or disables frame processing without stopping the loop.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector swaps the landmark detector.
func (a *App) SetDetector(d holistic.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

func (a *App) Detector() holistic.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Session returns the camera session.
func (a *App) Session() *pipeline.Session {
	return a.session
}

// Running reports whether the capture loop is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Start opens the camera and begins the capture loop in idle mode.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(capture.IdleFPS)

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.run(a.stopCh, a.doneCh)

	a.logger.Info("capture started", "session", a.session.ID())
	return nil
}

// Stop halts the capture loop, waits for it to exit and closes the camera.
// Buffered frames are discarded; Start may be called again.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if err := a.camera.Close(); err != nil {
		a.logger.Error("error closing camera", "error", err)
	}
	a.motion.Reset()
	a.session.Reset()

	a.logger.Info("capture stopped")
}

// Close stops capture and releases the session, motion detector and detector.
func (a *App) Close() {
	a.Stop()
	a.session.Close()
	a.motion.Close()

	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			a.logger.Error("error closing detector", "error", err)
		}
	}
}
