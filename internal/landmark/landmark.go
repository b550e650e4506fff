// Package landmark defines the hand and face landmark types produced by the
// pose and face models and consumed by the gesture and security packages.
package landmark

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// ErrIncomplete is returned by Hand.Validate when a required point is
// missing or carries a non-finite coordinate.
var ErrIncomplete = errors.New("incomplete landmark set")

// Point3D represents a normalized point. X and Y are in [0,1] image
// coordinates, Z is optional depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point2D is a face landmark in the same pixel space as its Box.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Hand is one ordered set of hand landmarks for a single frame.
// A complete set has NumLandmarks points; the model may deliver fewer.
type Hand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness,omitempty"` // "Left" or "Right"
	Score      float64   `json:"score,omitempty"`
}

// Validate reports whether every required landmark is present and finite.
func (h *Hand) Validate() error {
	if h == nil {
		return fmt.Errorf("%w: no hand", ErrIncomplete)
	}
	if len(h.Points) < NumLandmarks {
		return fmt.Errorf("%w: got %d points, want %d", ErrIncomplete, len(h.Points), NumLandmarks)
	}
	for i := 0; i < NumLandmarks; i++ {
		p := h.Points[i]
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return fmt.Errorf("%w: point %d is not finite", ErrIncomplete, i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Box is an axis-aligned face bounding box.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Center returns the box center.
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Valid reports whether the box has finite coordinates and a positive size.
func (b Box) Valid() bool {
	return finite(b.X) && finite(b.Y) && finite(b.W) && finite(b.H) && b.W > 0 && b.H > 0
}

// Face is a single detected face: a bounding box plus optional landmarks.
type Face struct {
	Box       Box       `json:"box"`
	Landmarks []Point2D `json:"landmarks,omitempty"`
	Score     float64   `json:"score,omitempty"`
}
