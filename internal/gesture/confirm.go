package gesture

import (
	"sync"
	"time"
)

// Default intruder confirmation parameters.
const (
	DefaultConfirmPeriod = 1500 * time.Millisecond
	DefaultRequiredHits  = 6
)

// ConfirmConfig configures a ConfirmationGate.
type ConfirmConfig struct {
	// Period is the minimum time between the first hit and confirmation.
	Period time.Duration
	// RequiredHits is the minimum number of consecutive hits.
	RequiredHits int
}

// DefaultConfirmConfig returns the intruder detection settings.
func DefaultConfirmConfig() ConfirmConfig {
	return ConfirmConfig{
		Period:       DefaultConfirmPeriod,
		RequiredHits: DefaultRequiredHits,
	}
}

// ConfirmState is a snapshot of the gate.
type ConfirmState struct {
	Pending     bool      `json:"pending"`
	Armed       bool      `json:"armed"`
	Hits        int       `json:"hits"`
	WindowStart time.Time `json:"window_start"`
}

// ConfirmationGate confirms an event only after a sustained run of
// consecutive detections: at least RequiredHits hits AND at least Period
// since the first one. A frame without a detection resets the run
// immediately. After a confirmation the gate stays disarmed until it sees
// such an idle frame.
type ConfirmationGate struct {
	cfg ConfirmConfig

	mu          sync.Mutex
	pending     bool
	armed       bool
	hits        int
	windowStart time.Time
}

// NewConfirmationGate creates an armed, idle gate.
func NewConfirmationGate(cfg ConfirmConfig) *ConfirmationGate {
	if cfg.RequiredHits < 1 {
		cfg.RequiredHits = 1
	}
	return &ConfirmationGate{cfg: cfg, armed: true}
}

// Observe records one frame with the given number of qualifying detections
// and reports whether this frame confirms the event.
func (g *ConfirmationGate) Observe(detections int, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if detections <= 0 {
		g.resetLocked()
		g.armed = true
		return false
	}

	if !g.armed {
		return false
	}

	g.hits++
	if g.hits == 1 {
		g.pending = true
		g.windowStart = now
	}

	if g.hits >= g.cfg.RequiredHits && now.Sub(g.windowStart) >= g.cfg.Period {
		g.resetLocked()
		g.armed = false
		return true
	}
	return false
}

// Reset returns the gate to armed and idle.
func (g *ConfirmationGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
	g.armed = true
}

// State returns a snapshot of the gate.
func (g *ConfirmationGate) State() ConfirmState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ConfirmState{
		Pending:     g.pending,
		Armed:       g.armed,
		Hits:        g.hits,
		WindowStart: g.windowStart,
	}
}

func (g *ConfirmationGate) resetLocked() {
	g.pending = false
	g.hits = 0
	g.windowStart = time.Time{}
}
