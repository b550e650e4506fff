package gesture

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/landmark"
)

const epsilon = 1e-9

func TestCountFingers(t *testing.T) {
	tests := []struct {
		name string
		hand landmark.Hand
		want int
	}{
		{"fist", landmark.Fist(), 0},
		{"thumb only", landmark.ThumbsUp(), 1},
		{"index only", landmark.Pose(false, true, false, false, false), 1},
		{"peace", landmark.Pose(false, true, true, false, false), 2},
		{"three fingers", landmark.Pose(false, true, true, true, false), 3},
		{"four fingers", landmark.Pose(false, true, true, true, true), 4},
		{"open palm is capped", landmark.OpenPalm(), MaxCount},
		{"thumb and index", landmark.Pose(true, true, false, false, false), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountFingers(tt.hand.Points)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CountFingers() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountFingers_ThumbUsesXAxis(t *testing.T) {
	hand := landmark.Fist()

	// Tip exactly level with the IP joint is not extended.
	hand.Points[landmark.ThumbTip].X = hand.Points[landmark.ThumbIP].X
	if got, _ := CountFingers(hand.Points); got != 0 {
		t.Errorf("thumb tip level with joint: got %d, want 0", got)
	}

	hand.Points[landmark.ThumbTip].X = hand.Points[landmark.ThumbIP].X + 0.01
	if got, _ := CountFingers(hand.Points); got != 1 {
		t.Errorf("thumb tip right of joint: got %d, want 1", got)
	}
}

func TestCountFingers_AlwaysInRange(t *testing.T) {
	for mask := 0; mask < 32; mask++ {
		hand := landmark.Pose(mask&1 != 0, mask&2 != 0, mask&4 != 0, mask&8 != 0, mask&16 != 0)
		got, err := CountFingers(hand.Points)
		if err != nil {
			t.Fatalf("mask %05b: unexpected error: %v", mask, err)
		}
		if got < 0 || got > MaxCount {
			t.Errorf("mask %05b: count %d out of range", mask, got)
		}
	}
}

func TestCountFingers_InvalidLandmarkSet(t *testing.T) {
	t.Run("nil points", func(t *testing.T) {
		_, err := CountFingers(nil)
		if !errors.Is(err, ErrInvalidLandmarkSet) {
			t.Errorf("expected ErrInvalidLandmarkSet, got %v", err)
		}
	})

	t.Run("truncated set", func(t *testing.T) {
		hand := landmark.OpenPalm()
		_, err := CountFingers(hand.Points[:landmark.ThumbTip])
		if !errors.Is(err, ErrInvalidLandmarkSet) {
			t.Errorf("expected ErrInvalidLandmarkSet, got %v", err)
		}
	})

	t.Run("NaN coordinate", func(t *testing.T) {
		hand := landmark.OpenPalm()
		hand.Points[landmark.RingTip].Y = math.NaN()
		_, err := CountFingers(hand.Points)
		if !errors.Is(err, ErrInvalidLandmarkSet) {
			t.Errorf("expected ErrInvalidLandmarkSet, got %v", err)
		}
	})
}

func TestConfidence(t *testing.T) {
	t.Run("fully visible hand scores the base value", func(t *testing.T) {
		hand := landmark.OpenPalm()
		if got := Confidence(hand.Points); math.Abs(got-0.8) > epsilon {
			t.Errorf("Confidence() = %f, want 0.8", got)
		}
	})

	t.Run("half the key points out of frame", func(t *testing.T) {
		hand := landmark.OpenPalm()
		hand.Points[landmark.Wrist].Y = 1.2
		hand.Points[landmark.ThumbTip].X = -0.1
		hand.Points[landmark.PinkyTip].X = 1.01
		if got := Confidence(hand.Points); math.Abs(got-0.4) > epsilon {
			t.Errorf("Confidence() = %f, want 0.4", got)
		}
	})

	t.Run("clamped to minimum", func(t *testing.T) {
		points := make([]landmark.Point3D, landmark.NumLandmarks)
		for i := range points {
			points[i] = landmark.Point3D{X: 2, Y: 2}
		}
		if got := Confidence(points); got != minConfidence {
			t.Errorf("Confidence() = %f, want %f", got, minConfidence)
		}
	})

	t.Run("short set does not panic", func(t *testing.T) {
		points := []landmark.Point3D{{X: 0.5, Y: 0.5}}
		if got := Confidence(points); got < minConfidence || got > maxConfidence {
			t.Errorf("Confidence() = %f out of range", got)
		}
	})
}

func TestFingers_Tag(t *testing.T) {
	tests := []struct {
		hand landmark.Hand
		want string
	}{
		{landmark.Fist(), TagFist},
		{landmark.OpenPalm(), TagOpenPalm},
		{landmark.ThumbsUp(), TagThumbsUp},
		{landmark.Pose(false, true, false, false, false), TagPoint},
		{landmark.Pose(false, true, true, false, false), TagPeace},
		{landmark.Pose(false, true, false, false, true), TagUnknown},
	}

	for _, tt := range tests {
		f, err := Extended(tt.hand.Points)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.Tag(); got != tt.want {
			t.Errorf("Tag() = %q, want %q", got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("builds a complete event", func(t *testing.T) {
		hand := landmark.Pose(false, true, true, false, false)
		ev, err := Classify(&hand, ts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Count != 2 || ev.Tag != TagPeace {
			t.Errorf("unexpected event %+v", ev)
		}
		if !ev.Timestamp.Equal(ts) {
			t.Errorf("timestamp not preserved")
		}
		if ev.Confidence <= 0 || ev.Confidence > 1 {
			t.Errorf("confidence %f out of range", ev.Confidence)
		}
	})

	t.Run("nil hand", func(t *testing.T) {
		if _, err := Classify(nil, ts); !errors.Is(err, ErrInvalidLandmarkSet) {
			t.Errorf("expected ErrInvalidLandmarkSet, got %v", err)
		}
	})
}
