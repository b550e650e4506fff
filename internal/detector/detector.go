// Package detector turns camera frames into hand and face landmarks.
package detector

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/landmark"
)

// HandDetector finds hands in a frame. An empty slice means no hand.
type HandDetector interface {
	Detect(frame *gocv.Mat) ([]landmark.Hand, error)
	Close() error
}

// FaceDetector finds faces in a frame. Boxes are in pixel coordinates.
type FaceDetector interface {
	DetectFaces(frame *gocv.Mat) ([]landmark.Face, error)
	Close() error
}

// DefaultIdleTimeout is how long the hand model process may sit unused
// before it is stopped.
const DefaultIdleTimeout = 30 * time.Second

// Config configures the MediaPipe hand detector.
type Config struct {
	// MaxHands is passed to the model; only the first hand drives devices.
	MaxHands int
	// MinConfidence is the minimum detection confidence (0.0-1.0).
	MinConfidence float64
	// Script is the hand service script. Empty searches the default
	// locations.
	Script string
	// Python is the interpreter. Empty prefers a virtualenv, then python3.
	Python string
	// IdleTimeout stops the model process after this long without frames.
	IdleTimeout time.Duration
}

// DefaultConfig returns the hand detector defaults.
func DefaultConfig() Config {
	return Config{
		MaxHands:      1,
		MinConfidence: 0.5,
		IdleTimeout:   DefaultIdleTimeout,
	}
}
