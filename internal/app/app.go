// Package app runs the camera pipelines: a hand loop that feeds gestures to
// the coordinator and a face loop that feeds the intruder monitor.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/security"
	"github.com/ayusman/mudra/internal/timeutil"
)

// DefaultFacePollInterval is how often the face loop samples a frame.
const DefaultFacePollInterval = 500 * time.Millisecond

// ErrAlreadyRunning is returned by Start on a running App.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Controller receives what the pipelines see.
type Controller interface {
	ProcessHand(hand *landmark.Hand) (gesture.Event, error)
	ProcessFaces(ctx context.Context, faces []landmark.Face) security.Observation
	ReportCameraError(err error)
	GesturesEnabled() bool
	Armed() bool
}

// Config wires an App. Camera, Hands, and Controller are required.
type Config struct {
	Camera     capture.Camera
	Hands      detector.HandDetector
	Faces      detector.FaceDetector
	Controller Controller

	// MotionThreshold is the changed-pixel percentage that counts as motion.
	MotionThreshold  float64
	IdleFPS          int
	ActiveFPS        int
	IdleTimeout      time.Duration
	FacePollInterval time.Duration
	Clock            timeutil.Clock
}

// App owns the camera and the detectors while running.
type App struct {
	config   Config
	camera   capture.Camera
	motion   *capture.MotionDetector
	activity *capture.Activity
	frames   *capture.Latest

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an App. Nothing is opened until Start.
func New(config Config) *App {
	if config.FacePollInterval <= 0 {
		config.FacePollInterval = DefaultFacePollInterval
	}
	return &App{
		config:   config,
		camera:   config.Camera,
		motion:   capture.NewMotionDetector(config.MotionThreshold),
		activity: capture.NewActivity(config.IdleFPS, config.ActiveFPS, config.IdleTimeout, config.Clock),
		frames:   capture.NewLatest(),
	}
}

// Frames returns the latest-frame holder used by the stream endpoint.
func (a *App) Frames() *capture.Latest {
	return a.frames
}

// Running reports whether the pipelines are running.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Start opens the camera and launches the pipelines. A camera that fails to
// open is reported to the controller and not retried.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return ErrAlreadyRunning
	}

	if err := a.camera.Open(); err != nil {
		a.config.Controller.ReportCameraError(err)
		return err
	}
	a.camera.SetFPS(a.activity.FPS())
	a.config.Controller.ReportCameraError(nil)

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runHands(ctx)
	}()

	if a.config.Faces != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runFaces(ctx)
		}()
	}

	monitoring.Logf("app: camera pipelines started")
	return nil
}

// Stop halts the pipelines and releases the camera and detectors.
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()

	if err := a.camera.Close(); err != nil {
		monitoring.Logf("app: error closing camera: %v", err)
	}
	a.motion.Close()
	if err := a.config.Hands.Close(); err != nil {
		monitoring.Logf("app: error closing hand detector: %v", err)
	}
	if a.config.Faces != nil {
		if err := a.config.Faces.Close(); err != nil {
			monitoring.Logf("app: error closing face detector: %v", err)
		}
	}
	a.frames.Close()
	monitoring.Logf("app: camera pipelines stopped")
}
