package security

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/timeutil"
)

type memRecorder struct {
	mu     sync.Mutex
	events []store.SecurityEvent
	err    error
}

func (r *memRecorder) Create(ctx context.Context, ev *store.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, *ev)
	return nil
}

type alertPublisher struct {
	events.Nop
	alerts []events.AlertEvent
}

func (p *alertPublisher) PublishAlert(ctx context.Context, ev events.AlertEvent) error {
	p.alerts = append(p.alerts, ev)
	return nil
}

type monitorFixture struct {
	mon      *Monitor
	clock    *timeutil.MockClock
	recorder *memRecorder
	pub      *alertPublisher
	alerts   []store.SecurityEvent
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		clock:    timeutil.NewMockClock(time.Date(2026, 2, 1, 22, 0, 0, 0, time.UTC)),
		recorder: &memRecorder{},
		pub:      &alertPublisher{},
	}
	f.mon = NewMonitor(MonitorConfig{
		Gate:      gesture.DefaultConfirmConfig(),
		Recorder:  f.recorder,
		Publisher: f.pub,
		Alerter: AlerterFunc(func(ev store.SecurityEvent) {
			f.alerts = append(f.alerts, ev)
		}),
		Clock: f.clock,
		Armed: true,
	})
	f.mon.SetAuthorized([]landmark.Face{referenceFace()})
	return f
}

// feed observes frames every 100ms for the given duration.
func (f *monitorFixture) feed(faces []landmark.Face, d time.Duration) []Observation {
	var out []Observation
	for elapsed := time.Duration(0); elapsed < d; elapsed += 100 * time.Millisecond {
		out = append(out, f.mon.Observe(context.Background(), faces))
		f.clock.Advance(100 * time.Millisecond)
	}
	return out
}

func strangers(n int) []landmark.Face {
	faces := make([]landmark.Face, n)
	for i := range faces {
		faces[i] = faceAt(landmark.Box{X: float64(20 + i*120), Y: 400, W: 40, H: 80})
	}
	return faces
}

func TestMonitor_AuthorizedFacesNeverAlert(t *testing.T) {
	f := newMonitorFixture(t)

	obs := f.feed([]landmark.Face{referenceFace()}, 3*time.Second)
	for _, o := range obs {
		assert.Zero(t, o.Unauthorized)
		assert.False(t, o.Confirmed)
	}
	assert.Empty(t, f.alerts)
}

func TestMonitor_ConfirmsSustainedIntruder(t *testing.T) {
	f := newMonitorFixture(t)

	obs := f.feed(strangers(2), 1600*time.Millisecond)

	confirmed := 0
	for i, o := range obs {
		assert.Equal(t, 2, o.Unauthorized)
		if o.Confirmed {
			confirmed++
			assert.Equal(t, 15, i, "confirms at the first frame 1500ms after the run started")
		}
	}
	require.Equal(t, 1, confirmed)

	require.Len(t, f.alerts, 1)
	ev := f.alerts[0]
	assert.Equal(t, store.EventKindIntruder, ev.Kind)
	assert.Equal(t, 2, ev.Faces)
	assert.Equal(t, "Intruder detected: 2 unrecognized faces", ev.Message)
	assert.NotEmpty(t, ev.ID)

	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, ev.ID, f.recorder.events[0].ID)
	require.Len(t, f.pub.alerts, 1)
	assert.Equal(t, ev.ID, f.pub.alerts[0].ID)
}

func TestMonitor_OneAlertPerPresence(t *testing.T) {
	f := newMonitorFixture(t)

	f.feed(strangers(1), 5*time.Second)
	assert.Len(t, f.alerts, 1, "gate stays disarmed while the intruder remains")

	f.feed(nil, 200*time.Millisecond)
	f.feed(strangers(1), 2*time.Second)
	assert.Len(t, f.alerts, 2, "a fresh run after an empty frame alerts again")
	assert.Equal(t, "Intruder detected: 1 unrecognized face", f.alerts[1].Message)
}

func TestMonitor_FlickerResets(t *testing.T) {
	f := newMonitorFixture(t)

	for i := 0; i < 4; i++ {
		f.feed(strangers(1), time.Second)
		f.feed(nil, 100*time.Millisecond)
	}
	assert.Empty(t, f.alerts)
}

func TestMonitor_InvalidFacesIgnored(t *testing.T) {
	f := newMonitorFixture(t)
	f.mon.SetAuthorized(nil)

	degenerate := []landmark.Face{{}, {Box: landmark.Box{X: 10, Y: 10, W: 0, H: 40}}}
	obs := f.feed(degenerate, 3*time.Second)
	for _, o := range obs {
		assert.Zero(t, o.Faces)
		assert.Equal(t, 2, o.Invalid)
		assert.Zero(t, o.Unauthorized)
		assert.False(t, o.Confirmed)
	}
	assert.Empty(t, f.alerts)
	assert.Zero(t, f.mon.Gate().Hits)

	mixed := append(strangers(1), degenerate...)
	last := f.feed(mixed, 1600*time.Millisecond)
	assert.Equal(t, 1, last[0].Faces)
	assert.Equal(t, 1, last[0].Unauthorized)
	assert.Len(t, f.alerts, 1)
	assert.Equal(t, 1, f.alerts[0].Faces)
}

func TestMonitor_Disarmed(t *testing.T) {
	f := newMonitorFixture(t)
	f.mon.SetArmed(false)
	assert.False(t, f.mon.Armed())

	obs := f.feed(strangers(1), 3*time.Second)
	for _, o := range obs {
		assert.Zero(t, o.Unauthorized)
	}
	assert.Empty(t, f.alerts)

	f.feed(strangers(1), time.Second)
	f.mon.SetArmed(true)
	assert.Zero(t, f.mon.Gate().Hits, "arming starts from an idle gate")
}

func TestMonitor_NoAuthorizedFaces(t *testing.T) {
	f := newMonitorFixture(t)
	f.mon.SetAuthorized(nil)
	assert.Zero(t, f.mon.Authorized())

	f.feed([]landmark.Face{referenceFace()}, 1600*time.Millisecond)
	assert.Len(t, f.alerts, 1)
}

func TestMonitor_RecorderFailureStillAlerts(t *testing.T) {
	f := newMonitorFixture(t)
	f.recorder.err = errors.New("disk full")

	f.feed(strangers(1), 1600*time.Millisecond)
	assert.Len(t, f.alerts, 1)
	assert.Len(t, f.pub.alerts, 1)
}

func TestMonitor_Defaults(t *testing.T) {
	m := NewMonitor(MonitorConfig{Gate: gesture.ConfirmConfig{RequiredHits: 1}, Armed: true})
	obs := m.Observe(context.Background(), strangers(1))
	assert.True(t, obs.Confirmed)
	require.NotNil(t, obs.Event)
}
