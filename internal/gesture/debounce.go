package gesture

import (
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/timeutil"
)

// Default debounce timings for device toggles.
const (
	DefaultDebounceDelay = 100 * time.Millisecond
	DefaultCooldown      = 1500 * time.Millisecond
)

// Phase is the debouncer's current state.
type Phase int

const (
	// PhaseIdle means nothing is pending and no value is locked out.
	PhaseIdle Phase = iota
	// PhasePending means a value is waiting for its debounce delay.
	PhasePending
	// PhaseLocked means the last accepted value is inside its cooldown.
	PhaseLocked
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// State is a snapshot of the debouncer.
type State struct {
	Phase    Phase
	Value    int       // pending value, or locked value
	Deadline time.Time // acceptance time when pending, unlock time when locked
}

// DebounceConfig configures a Debouncer.
type DebounceConfig struct {
	// Delay is how long a new value must go uncontradicted before it is
	// accepted. Zero or negative accepts immediately.
	Delay time.Duration
	// Cooldown locks a value out for this long after it fires, even once a
	// different value has been accepted in between.
	Cooldown time.Duration
	// Clock drives timers; nil uses the real clock.
	Clock timeutil.Clock
}

// DefaultDebounceConfig returns the timings used for LED toggles.
func DefaultDebounceConfig() DebounceConfig {
	return DebounceConfig{
		Delay:    DefaultDebounceDelay,
		Cooldown: DefaultCooldown,
	}
}

// Debouncer accepts a classification only once it has been stable for the
// configured delay. Only a value that differs from the last accepted one is
// considered, so a held classification fires once however long it is held.
// Each accepted value is also locked out for a cooldown, which absorbs
// C→D→C bounces. A different value arriving while one is pending replaces it
// and restarts the delay.
type Debouncer struct {
	cfg      DebounceConfig
	clock    timeutil.Clock
	onAccept func(int)

	mu           sync.Mutex
	pending      bool
	pendingValue int
	deadline     time.Time
	timer        timeutil.Timer
	gen          uint64

	hasAccepted bool
	accepted    int
	unlockAt    map[int]time.Time
}

// NewDebouncer creates a Debouncer calling onAccept for each accepted value.
// onAccept runs without the debouncer lock held and may call back into it.
func NewDebouncer(cfg DebounceConfig, onAccept func(int)) *Debouncer {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Debouncer{
		cfg:      cfg,
		clock:    clock,
		onAccept: onAccept,
		unlockAt: make(map[int]time.Time),
	}
}

// Observe feeds one classification into the debouncer.
func (d *Debouncer) Observe(value int) {
	d.mu.Lock()

	if d.pending && value == d.pendingValue {
		d.mu.Unlock()
		return
	}

	now := d.clock.Now()
	if d.hasAccepted && value == d.accepted {
		// Still holding the accepted value; a contradicting pending value was
		// a blip and is dropped.
		d.cancelLocked()
		d.mu.Unlock()
		return
	}
	if d.lockedOut(value, now) {
		d.cancelLocked()
		d.mu.Unlock()
		return
	}

	d.cancelLocked()

	if d.cfg.Delay <= 0 {
		d.acceptLocked(value, now)
		d.mu.Unlock()
		d.emit(value)
		return
	}

	d.gen++
	gen := d.gen
	d.pending = true
	d.pendingValue = value
	d.deadline = now.Add(d.cfg.Delay)
	d.timer = d.clock.AfterFunc(d.cfg.Delay, func() { d.fire(gen) })
	d.mu.Unlock()
}

// Cancel drops any pending value without accepting it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Reset drops any pending value, forgets the accepted value and clears
// every cooldown.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.hasAccepted = false
	d.unlockAt = make(map[int]time.Time)
}

// State returns a snapshot of the debouncer.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending {
		return State{Phase: PhasePending, Value: d.pendingValue, Deadline: d.deadline}
	}
	if d.hasAccepted {
		if until := d.unlockAt[d.accepted]; d.clock.Now().Before(until) {
			return State{Phase: PhaseLocked, Value: d.accepted, Deadline: until}
		}
	}
	return State{Phase: PhaseIdle}
}

// fire is the timer callback for generation gen. A timer that lost a race
// with Cancel or a newer Observe sees a stale generation and does nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	value := d.pendingValue
	d.pending = false
	d.timer = nil
	d.acceptLocked(value, d.clock.Now())
	d.mu.Unlock()

	d.emit(value)
}

func (d *Debouncer) lockedOut(value int, now time.Time) bool {
	until, ok := d.unlockAt[value]
	return ok && now.Before(until)
}

func (d *Debouncer) acceptLocked(value int, now time.Time) {
	for v, until := range d.unlockAt {
		if !now.Before(until) {
			delete(d.unlockAt, v)
		}
	}
	d.hasAccepted = true
	d.accepted = value
	d.unlockAt[value] = now.Add(d.cfg.Cooldown)
}

func (d *Debouncer) cancelLocked() {
	if !d.pending {
		return
	}
	d.gen++
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) emit(value int) {
	if d.onAccept != nil {
		d.onAccept(value)
	}
}
