package app

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/home"
	"github.com/ayusman/mudra/internal/monitoring"
)

// runHands reads the camera at the idle or active rate. Every frame is
// published for the face loop and the stream. Motion switches to the active
// rate, and only active frames go through hand detection; the first hand
// found is handed to the controller. A camera failure ends the loop.
func (a *App) runHands(ctx context.Context) {
	ticker := time.NewTicker(a.activity.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrCameraUnavailable) || errors.Is(err, capture.ErrCameraNotOpen) {
				a.config.Controller.ReportCameraError(err)
				return
			}
			monitoring.Logf("app: skipping frame: %v", err)
			continue
		}

		a.frames.Publish(frame)

		moving, _ := a.motion.Detect(frame)
		if a.activity.Observe(moving) {
			a.camera.SetFPS(a.activity.FPS())
			ticker.Reset(a.activity.Interval())
		}

		if a.activity.Active() && a.config.Controller.GesturesEnabled() {
			a.detectHand(frame)
		}
		frame.Close()
	}
}

func (a *App) detectHand(frame *gocv.Mat) {
	hands, err := a.config.Hands.Detect(frame)
	if err != nil {
		monitoring.Logf("app: hand detection failed: %v", err)
		return
	}
	if len(hands) == 0 {
		return
	}

	_, err = a.config.Controller.ProcessHand(&hands[0])
	if err != nil && !errors.Is(err, gesture.ErrInvalidLandmarkSet) && !errors.Is(err, home.ErrGesturesDisabled) {
		monitoring.Logf("app: hand frame dropped: %v", err)
	}
}

// runFaces samples the latest frame while the monitor is armed and passes
// the detected faces to the controller. Frames already seen are skipped.
func (a *App) runFaces(ctx context.Context) {
	ticker := time.NewTicker(a.config.FacePollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !a.config.Controller.Armed() {
			continue
		}

		frame, seq, err := a.frames.Snapshot()
		if err != nil || seq == lastSeq {
			if frame != nil {
				frame.Close()
			}
			continue
		}
		lastSeq = seq

		faces, err := a.config.Faces.DetectFaces(frame)
		frame.Close()
		if err != nil {
			monitoring.Logf("app: face detection failed: %v", err)
			continue
		}
		a.config.Controller.ProcessFaces(ctx, faces)
	}
}
