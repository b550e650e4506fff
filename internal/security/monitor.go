package security

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/timeutil"
)

// EventRecorder persists confirmed security events.
type EventRecorder interface {
	Create(ctx context.Context, ev *store.SecurityEvent) error
}

// Alerter is told about every confirmed intrusion.
type Alerter interface {
	Alert(ev store.SecurityEvent)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(store.SecurityEvent)

// Alert calls f(ev).
func (f AlerterFunc) Alert(ev store.SecurityEvent) { f(ev) }

// MonitorConfig configures a Monitor. Everything but Gate is optional.
type MonitorConfig struct {
	Gate      gesture.ConfirmConfig
	Recorder  EventRecorder
	Publisher events.Publisher
	Alerter   Alerter
	Clock     timeutil.Clock
	// Armed sets the initial state.
	Armed bool
}

// Observation is the outcome of one processed face frame.
type Observation struct {
	Faces        int                  `json:"faces"`
	Invalid      int                  `json:"invalid,omitempty"`
	Unauthorized int                  `json:"unauthorized"`
	Confirmed    bool                 `json:"confirmed"`
	Event        *store.SecurityEvent `json:"event,omitempty"`
}

// Monitor counts unauthorized faces per frame and raises an alert once the
// count stays non-zero long enough to pass the confirmation gate.
type Monitor struct {
	gate      *gesture.ConfirmationGate
	recorder  EventRecorder
	publisher events.Publisher
	alerter   Alerter
	clock     timeutil.Clock

	mu         sync.RWMutex
	armed      bool
	authorized []landmark.Face
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	m := &Monitor{
		gate:      gesture.NewConfirmationGate(cfg.Gate),
		recorder:  cfg.Recorder,
		publisher: cfg.Publisher,
		alerter:   cfg.Alerter,
		clock:     cfg.Clock,
		armed:     cfg.Armed,
	}
	if m.publisher == nil {
		m.publisher = events.Nop{}
	}
	if m.clock == nil {
		m.clock = timeutil.RealClock{}
	}
	return m
}

// SetAuthorized replaces the reference faces.
func (m *Monitor) SetAuthorized(faces []landmark.Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorized = append([]landmark.Face(nil), faces...)
}

// Authorized returns the number of reference faces.
func (m *Monitor) Authorized() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.authorized)
}

// SetArmed arms or disarms the monitor. Either transition clears any
// partially confirmed run.
func (m *Monitor) SetArmed(armed bool) {
	m.mu.Lock()
	m.armed = armed
	m.mu.Unlock()
	m.gate.Reset()
}

// Armed reports whether the monitor is armed.
func (m *Monitor) Armed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.armed
}

// Gate returns a snapshot of the confirmation gate.
func (m *Monitor) Gate() gesture.ConfirmState {
	return m.gate.State()
}

// Observe processes one frame of detected faces. Faces with an invalid box
// are counted in Invalid and otherwise ignored.
func (m *Monitor) Observe(ctx context.Context, faces []landmark.Face) Observation {
	m.mu.RLock()
	armed := m.armed
	refs := m.authorized
	m.mu.RUnlock()

	var obs Observation
	for _, f := range faces {
		if f.Box.Valid() {
			obs.Faces++
		} else {
			obs.Invalid++
		}
	}
	if !armed {
		m.gate.Reset()
		return obs
	}

	obs.Unauthorized = CountUnauthorized(faces, refs)
	now := m.clock.Now()
	if !m.gate.Observe(obs.Unauthorized, now) {
		return obs
	}

	ev := store.SecurityEvent{
		ID:        uuid.NewString(),
		Kind:      store.EventKindIntruder,
		Faces:     obs.Unauthorized,
		Message:   intruderMessage(obs.Unauthorized),
		CreatedAt: now,
	}
	if m.recorder != nil {
		if err := m.recorder.Create(ctx, &ev); err != nil {
			monitoring.Logf("security: failed to record event: %v", err)
		}
	}
	if err := m.publisher.PublishAlert(ctx, events.AlertEvent{
		ID:        ev.ID,
		Kind:      ev.Kind,
		Faces:     ev.Faces,
		Message:   ev.Message,
		Timestamp: ev.CreatedAt,
	}); err != nil {
		monitoring.Logf("security: failed to publish alert: %v", err)
	}
	if m.alerter != nil {
		m.alerter.Alert(ev)
	}

	obs.Confirmed = true
	obs.Event = &ev
	return obs
}

func intruderMessage(n int) string {
	if n == 1 {
		return "Intruder detected: 1 unrecognized face"
	}
	return fmt.Sprintf("Intruder detected: %d unrecognized faces", n)
}
