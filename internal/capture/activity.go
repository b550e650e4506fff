package capture

import (
	"time"

	"github.com/ayusman/mudra/internal/timeutil"
)

// Frame rates and the quiet period before dropping back to idle.
const (
	IdleFPS     = 5
	ActiveFPS   = 15
	IdleTimeout = 2 * time.Second
)

// Activity tracks whether the scene is active. Motion switches it to the
// active rate at once; it returns to idle after IdleTimeout without motion.
type Activity struct {
	clock     timeutil.Clock
	idleFPS   int
	activeFPS int
	timeout   time.Duration

	active     bool
	lastMotion time.Time
}

// NewActivity creates a tracker. Non-positive rates and timeouts use the
// package defaults. A nil clock uses the real clock.
func NewActivity(idleFPS, activeFPS int, timeout time.Duration, clock timeutil.Clock) *Activity {
	if idleFPS <= 0 {
		idleFPS = IdleFPS
	}
	if activeFPS <= 0 {
		activeFPS = ActiveFPS
	}
	if timeout <= 0 {
		timeout = IdleTimeout
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Activity{
		clock:     clock,
		idleFPS:   idleFPS,
		activeFPS: activeFPS,
		timeout:   timeout,
	}
}

// Observe records one motion sample and reports whether the active state
// changed.
func (a *Activity) Observe(motion bool) (changed bool) {
	if motion {
		a.lastMotion = a.clock.Now()
		if !a.active {
			a.active = true
			return true
		}
		return false
	}
	if a.active && a.clock.Since(a.lastMotion) > a.timeout {
		a.active = false
		return true
	}
	return false
}

// Active reports whether the scene is currently active.
func (a *Activity) Active() bool {
	return a.active
}

// FPS returns the frame rate for the current state.
func (a *Activity) FPS() int {
	if a.active {
		return a.activeFPS
	}
	return a.idleFPS
}

// Interval returns the time between frames at the current rate.
func (a *Activity) Interval() time.Duration {
	return time.Second / time.Duration(a.FPS())
}
