// Package gesture classifies hand landmarks into finger counts and sign tags,
// and gates the resulting stream with debounce and confirmation filters.
package gesture

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/landmark"
)

// ErrInvalidLandmarkSet is returned when a landmark set is missing required
// points. Callers skip the frame without touching gate state.
var ErrInvalidLandmarkSet = errors.New("invalid landmark set")

// MaxCount is the largest finger count the classifier reports. An open palm
// marks five fingers extended but is reported as MaxCount.
const MaxCount = 4

// Confidence heuristic parameters.
const (
	baseConfidence = 0.8
	minConfidence  = 0.1
	maxConfidence  = 1.0
)

// Sign tags reported alongside the finger count.
const (
	TagFist     = "fist"
	TagOpenPalm = "open_palm"
	TagThumbsUp = "thumbs_up"
	TagPoint    = "point"
	TagPeace    = "peace"
	TagUnknown  = "unknown"
)

// keyPoints is the subset used by the visibility heuristic.
var keyPoints = [...]int{
	landmark.Wrist,
	landmark.ThumbTip,
	landmark.IndexTip,
	landmark.MiddleTip,
	landmark.RingTip,
	landmark.PinkyTip,
}

// fingerJoints pairs each non-thumb fingertip with its PIP joint.
var fingerJoints = [...][2]int{
	{landmark.IndexTip, landmark.IndexPIP},
	{landmark.MiddleTip, landmark.MiddlePIP},
	{landmark.RingTip, landmark.RingPIP},
	{landmark.PinkyTip, landmark.PinkyPIP},
}

// Event is one classified frame.
type Event struct {
	Count      int       `json:"count"`
	Tag        string    `json:"tag"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Fingers holds the per-finger extension flags for one hand.
type Fingers struct {
	Thumb, Index, Middle, Ring, Pinky bool
}

// Extended returns the per-finger extension flags.
//
// The thumb is extended when its tip lies right of the IP joint. This only
// holds for a right hand in a mirrored feed; a left hand or an unmirrored
// camera will misread the thumb. The other fingers are extended when the tip
// sits above the PIP joint in image coordinates.
func Extended(points []landmark.Point3D) (Fingers, error) {
	hand := landmark.Hand{Points: points}
	if err := hand.Validate(); err != nil {
		return Fingers{}, fmt.Errorf("%w: %v", ErrInvalidLandmarkSet, err)
	}

	up := func(tip, joint int) bool {
		return points[tip].Y < points[joint].Y
	}

	return Fingers{
		Thumb:  points[landmark.ThumbTip].X > points[landmark.ThumbIP].X,
		Index:  up(fingerJoints[0][0], fingerJoints[0][1]),
		Middle: up(fingerJoints[1][0], fingerJoints[1][1]),
		Ring:   up(fingerJoints[2][0], fingerJoints[2][1]),
		Pinky:  up(fingerJoints[3][0], fingerJoints[3][1]),
	}, nil
}

// Count returns the number of extended fingers, capped at MaxCount.
func (f Fingers) Count() int {
	n := 0
	for _, up := range []bool{f.Thumb, f.Index, f.Middle, f.Ring, f.Pinky} {
		if up {
			n++
		}
	}
	if n > MaxCount {
		n = MaxCount
	}
	return n
}

// Tag maps the finger flags to a sign tag.
func (f Fingers) Tag() string {
	switch f {
	case Fingers{}:
		return TagFist
	case Fingers{Thumb: true, Index: true, Middle: true, Ring: true, Pinky: true}:
		return TagOpenPalm
	case Fingers{Thumb: true}:
		return TagThumbsUp
	case Fingers{Index: true}:
		return TagPoint
	case Fingers{Index: true, Middle: true}:
		return TagPeace
	default:
		return TagUnknown
	}
}

// CountFingers returns the number of extended fingers in [0, MaxCount].
func CountFingers(points []landmark.Point3D) (int, error) {
	f, err := Extended(points)
	if err != nil {
		return 0, err
	}
	return f.Count(), nil
}

// SignTag returns the symbolic tag for a landmark set.
func SignTag(points []landmark.Point3D) (string, error) {
	f, err := Extended(points)
	if err != nil {
		return "", err
	}
	return f.Tag(), nil
}

// Confidence scores how much of the hand is inside the frame: a fixed base
// scaled by the fraction of the wrist and fingertips with x and y in [0,1].
// It is a visibility heuristic and says nothing about model certainty.
func Confidence(points []landmark.Point3D) float64 {
	visible := 0
	for _, idx := range keyPoints {
		if idx >= len(points) {
			continue
		}
		p := points[idx]
		if p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1 {
			visible++
		}
	}

	c := baseConfidence * float64(visible) / float64(len(keyPoints))
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

// Classify turns one hand into an Event stamped with ts.
func Classify(hand *landmark.Hand, ts time.Time) (Event, error) {
	if hand == nil {
		return Event{}, fmt.Errorf("%w: no hand", ErrInvalidLandmarkSet)
	}

	f, err := Extended(hand.Points)
	if err != nil {
		return Event{}, err
	}

	return Event{
		Count:      f.Count(),
		Tag:        f.Tag(),
		Confidence: Confidence(hand.Points),
		Timestamp:  ts,
	}, nil
}
