package landmark

import (
	"errors"
	"math"
	"testing"
)

func TestHand_Validate(t *testing.T) {
	t.Run("complete hand is valid", func(t *testing.T) {
		hand := OpenPalm()
		if err := hand.Validate(); err != nil {
			t.Errorf("expected valid hand, got %v", err)
		}
	})

	t.Run("nil hand", func(t *testing.T) {
		var hand *Hand
		if err := hand.Validate(); !errors.Is(err, ErrIncomplete) {
			t.Errorf("expected ErrIncomplete, got %v", err)
		}
	})

	t.Run("too few points", func(t *testing.T) {
		hand := OpenPalm()
		hand.Points = hand.Points[:PinkyTip]
		if err := hand.Validate(); !errors.Is(err, ErrIncomplete) {
			t.Errorf("expected ErrIncomplete, got %v", err)
		}
	})

	t.Run("NaN coordinate", func(t *testing.T) {
		hand := OpenPalm()
		hand.Points[IndexTip].Y = math.NaN()
		if err := hand.Validate(); !errors.Is(err, ErrIncomplete) {
			t.Errorf("expected ErrIncomplete, got %v", err)
		}
	})

	t.Run("extra points are ignored", func(t *testing.T) {
		hand := OpenPalm()
		hand.Points = append(hand.Points, Point3D{X: math.Inf(1)})
		if err := hand.Validate(); err != nil {
			t.Errorf("expected valid hand, got %v", err)
		}
	})
}

func TestPose(t *testing.T) {
	t.Run("thumbs up extends only the thumb", func(t *testing.T) {
		hand := ThumbsUp()
		if hand.Points[ThumbTip].X <= hand.Points[ThumbIP].X {
			t.Error("thumb tip should be right of the thumb IP joint")
		}
		for _, f := range [][2]int{{IndexTip, IndexPIP}, {MiddleTip, MiddlePIP}, {RingTip, RingPIP}, {PinkyTip, PinkyPIP}} {
			if hand.Points[f[0]].Y < hand.Points[f[1]].Y {
				t.Errorf("finger tip %d should be below its PIP joint", f[0])
			}
		}
	})

	t.Run("open palm extends every finger", func(t *testing.T) {
		hand := OpenPalm()
		for _, f := range [][2]int{{IndexTip, IndexPIP}, {MiddleTip, MiddlePIP}, {RingTip, RingPIP}, {PinkyTip, PinkyPIP}} {
			if hand.Points[f[0]].Y >= hand.Points[f[1]].Y {
				t.Errorf("finger tip %d should be above its PIP joint", f[0])
			}
		}
	})

	t.Run("points stay in the unit square", func(t *testing.T) {
		for _, hand := range []Hand{ThumbsUp(), OpenPalm(), Fist()} {
			for i, p := range hand.Points {
				if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
					t.Errorf("point %d out of range: %+v", i, p)
				}
			}
		}
	})
}

func TestBox_Center(t *testing.T) {
	x, y := Box{X: 10, Y: 20, W: 100, H: 50}.Center()
	if x != 60 || y != 45 {
		t.Errorf("expected center (60,45), got (%v,%v)", x, y)
	}
}

func TestBox_Valid(t *testing.T) {
	tests := []struct {
		name string
		box  Box
		want bool
	}{
		{"positive size", Box{X: 10, Y: 20, W: 100, H: 50}, true},
		{"zero width", Box{W: 0, H: 50}, false},
		{"negative height", Box{W: 10, H: -5}, false},
		{"NaN origin", Box{X: math.NaN(), W: 10, H: 10}, false},
		{"infinite width", Box{W: math.Inf(1), H: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.box.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
