package home

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/security"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/timeutil"
	"github.com/ayusman/mudra/internal/voice"
)

type feedbackLog struct {
	mu        sync.Mutex
	spoken    []string
	vibrated  [][]int
	announced []string
}

func (f *feedbackLog) Speak(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
}

func (f *feedbackLog) Vibrate(pattern []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vibrated = append(f.vibrated, pattern)
}

func (f *feedbackLog) Announce(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, text)
}

func (f *feedbackLog) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoken), len(f.vibrated), len(f.announced)
}

func (f *feedbackLog) lastSpoken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.spoken) == 0 {
		return ""
	}
	return f.spoken[len(f.spoken)-1]
}

type fixture struct {
	home     *Home
	sink     *device.Sink
	store    *store.Store
	clock    *timeutil.MockClock
	feedback *feedbackLog
}

func newFixture(t *testing.T, dbPath string) *fixture {
	t.Helper()

	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "home.db")
	}
	st, err := store.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	fb := &feedbackLog{}
	gate := NewFeedbackGate(fb)

	sink := device.NewSink(device.Options{
		Fallback: st,
		Feedback: gate,
		Clock:    clock,
	})
	monitor := security.NewMonitor(security.MonitorConfig{
		Gate:     gesture.DefaultConfirmConfig(),
		Recorder: st.SecurityEvents(),
		Clock:    clock,
	})

	h := New(Config{
		Sink:     sink,
		Monitor:  monitor,
		Feedback: gate,
		Settings: st.Settings(),
		Faces:    st.Faces(),
		Events:   st.SecurityEvents(),
		Debounce: gesture.DebounceConfig{
			Delay:    100 * time.Millisecond,
			Cooldown: 1500 * time.Millisecond,
		},
		Clock: clock,
	})
	require.NoError(t, h.Init(context.Background()))
	t.Cleanup(h.Close)

	return &fixture{home: h, sink: sink, store: st, clock: clock, feedback: fb}
}

func twoFingers() *landmark.Hand {
	h := landmark.Pose(false, true, true, false, false)
	return &h
}

func TestHome_GestureTogglesDevice(t *testing.T) {
	f := newFixture(t, "")

	ev, err := f.home.ProcessHand(twoFingers())
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Count)
	assert.Equal(t, gesture.TagPeace, ev.Tag)

	f.clock.Advance(99 * time.Millisecond)
	d, _ := f.sink.Get(2)
	assert.False(t, d.On, "not accepted before the debounce delay")

	f.clock.Advance(time.Millisecond)
	d, _ = f.sink.Get(2)
	assert.True(t, d.On)

	st := f.home.Status()
	assert.Equal(t, "Light 2 turned on", st.Text)
	require.NotNil(t, st.LastGesture)
	assert.Equal(t, 2, st.LastGesture.Count)
	assert.Equal(t, gesture.PhaseLocked.String(), st.Debounce)
	assert.Equal(t, "Light 2 turned on", f.feedback.lastSpoken())
}

func TestHome_GestureCooldownAndZero(t *testing.T) {
	f := newFixture(t, "")

	fist := landmark.Fist()
	_, err := f.home.ProcessHand(&fist)
	require.NoError(t, err)
	f.clock.Advance(200 * time.Millisecond)

	for _, d := range f.sink.Devices() {
		assert.False(t, d.On, "zero fingers selects no device")
	}

	thumb := landmark.ThumbsUp()
	f.home.ProcessHand(&thumb)
	f.clock.Advance(100 * time.Millisecond)
	f.home.ProcessHand(&thumb)
	f.clock.Advance(500 * time.Millisecond)

	d, _ := f.sink.Get(1)
	assert.True(t, d.On, "held gesture toggles once inside the cooldown")
}

func TestHome_HeldGestureTogglesOnce(t *testing.T) {
	f := newFixture(t, "")

	var mu sync.Mutex
	var changes []bool
	f.sink.AddListener(device.ListenerFunc(func(d device.Device) {
		if d.ID != 2 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, d.On)
	}))
	toggles := func() []bool {
		mu.Lock()
		defer mu.Unlock()
		return append([]bool(nil), changes...)
	}

	// Two fingers held for about four seconds at 15 FPS, well past the
	// 1500ms cooldown.
	for i := 0; i < 60; i++ {
		_, err := f.home.ProcessHand(twoFingers())
		require.NoError(t, err)
		f.clock.Advance(66 * time.Millisecond)
	}
	assert.Equal(t, []bool{true}, toggles())

	// A fist in between lets the same count toggle again.
	fist := landmark.Fist()
	for i := 0; i < 5; i++ {
		f.home.ProcessHand(&fist)
		f.clock.Advance(66 * time.Millisecond)
	}
	for i := 0; i < 30; i++ {
		f.home.ProcessHand(twoFingers())
		f.clock.Advance(66 * time.Millisecond)
	}
	assert.Equal(t, []bool{true, false}, toggles())
}

func TestHome_InvalidHand(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.home.ProcessHand(nil)
	assert.ErrorIs(t, err, gesture.ErrInvalidLandmarkSet)

	short := &landmark.Hand{Points: make([]landmark.Point3D, 5)}
	_, err = f.home.ProcessHand(short)
	assert.ErrorIs(t, err, gesture.ErrInvalidLandmarkSet)

	assert.Equal(t, gesture.PhaseIdle.String(), f.home.Status().Debounce)
	assert.Nil(t, f.home.Status().LastGesture)
}

func TestHome_GesturesDisabledCancelsPending(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.home.ProcessHand(twoFingers())
	require.NoError(t, err)
	require.NoError(t, f.home.SetGesturesEnabled(ctx, false))

	f.clock.Advance(time.Second)
	d, _ := f.sink.Get(2)
	assert.False(t, d.On, "pending gesture dropped when gestures are disabled")

	_, err = f.home.ProcessHand(twoFingers())
	assert.ErrorIs(t, err, ErrGesturesDisabled)
	assert.False(t, f.home.Status().GesturesEnabled)
}

func TestHome_HandleVoice(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	cmd, err := f.home.HandleVoice(ctx, "turn on light 3")
	require.NoError(t, err)
	assert.Equal(t, voice.Command{Action: voice.ActionOn, DeviceID: 3}, cmd)
	d, _ := f.sink.Get(3)
	assert.True(t, d.On)

	_, err = f.home.HandleVoice(ctx, "toggle all")
	require.NoError(t, err)
	for _, d := range f.sink.Devices() {
		assert.False(t, d.On, "toggle all turns everything off when any device is on")
	}
	assert.Equal(t, "All lights turned off", f.home.Status().Text)

	_, err = f.home.HandleVoice(ctx, "toggle all")
	require.NoError(t, err)
	for _, d := range f.sink.Devices() {
		assert.True(t, d.On)
	}

	_, err = f.home.HandleVoice(ctx, "what's the weather")
	assert.ErrorIs(t, err, voice.ErrUnrecognized)
	assert.Equal(t, "Sorry, I didn't understand that", f.feedback.lastSpoken())
	assert.Contains(t, f.home.Status().Text, "Command not recognized")
}

func TestHome_FeedbackFollowsSettings(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.home.SetDevice(ctx, 1, true)
	require.NoError(t, err)
	spoken, vibrated, announced := f.feedback.counts()
	assert.Equal(t, 1, spoken)
	assert.Equal(t, 1, vibrated)
	assert.Equal(t, 0, announced, "screen reader is off by default")

	s := f.home.Settings()
	s.Vibration = false
	s.VoiceFeedback = false
	s.ScreenReader = true
	_, err = f.home.UpdateSettings(ctx, s)
	require.NoError(t, err)

	_, err = f.home.ToggleDevice(ctx, 1)
	require.NoError(t, err)
	spoken, vibrated, announced = f.feedback.counts()
	assert.Equal(t, 1, spoken)
	assert.Equal(t, 1, vibrated)
	assert.Equal(t, 1, announced)
}

func TestHome_SettingsPersist(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	first := newFixture(t, dbPath)
	s := first.home.Settings()
	s.HighContrast = true
	s.LargeText = true
	s.Armed = true
	_, err := first.home.UpdateSettings(ctx, s)
	require.NoError(t, err)
	first.store.Close()

	second := newFixture(t, dbPath)
	got := second.home.Settings()
	assert.True(t, got.HighContrast)
	assert.True(t, got.LargeText)
	assert.True(t, got.Armed)
	assert.True(t, second.home.Status().Armed)
}

func TestHome_Defaults(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "defaults.db"))
	require.NoError(t, err)
	defer st.Close()

	defaults := DefaultSettings()
	defaults.Armed = true
	defaults.GesturesEnabled = false

	h := New(Config{
		Sink:     device.NewSink(device.Options{}),
		Settings: st.Settings(),
		Defaults: &defaults,
	})
	require.NoError(t, h.Init(context.Background()))
	defer h.Close()

	assert.Equal(t, defaults, h.Settings())
	assert.True(t, h.Status().Armed)
}

var (
	resident = landmark.Face{Box: landmark.Box{X: 100, Y: 100, W: 100, H: 120}}
	stranger = landmark.Face{Box: landmark.Box{X: 420, Y: 40, W: 40, H: 110}}
)

func TestHome_IntruderConfirmed(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.home.EnrollFace(ctx, "Resident", resident)
	require.NoError(t, err)
	require.NoError(t, f.home.SetArmed(ctx, true))
	assert.Equal(t, 1, f.home.Status().AuthorizedFaces)

	var statuses []Status
	f.home.AddStatusListener(StatusListenerFunc(func(s Status) { statuses = append(statuses, s) }))

	confirmed := 0
	for i := 0; i < 8; i++ {
		obs := f.home.ProcessFaces(ctx, []landmark.Face{resident, stranger})
		assert.Equal(t, 2, obs.Faces)
		assert.Equal(t, 1, obs.Unauthorized)
		if obs.Confirmed {
			confirmed++
		}
		f.clock.Advance(300 * time.Millisecond)
	}
	assert.Equal(t, 1, confirmed, "one alert per continuous intrusion")

	events, err := f.home.SecurityEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Intruder detected: 1 unrecognized face", events[0].Message)
	assert.Equal(t, events[0].Message, f.home.Status().Text)
	require.NotEmpty(t, statuses)

	n, err := f.home.ClearSecurityEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestHome_AuthorizedFaceDoesNotAlert(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.home.EnrollFace(ctx, "Resident", resident)
	require.NoError(t, err)
	require.NoError(t, f.home.SetArmed(ctx, true))

	for i := 0; i < 10; i++ {
		obs := f.home.ProcessFaces(ctx, []landmark.Face{resident})
		assert.Zero(t, obs.Unauthorized)
		assert.False(t, obs.Confirmed)
		f.clock.Advance(300 * time.Millisecond)
	}

	events, err := f.home.SecurityEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHome_DisarmedIgnoresFaces(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		obs := f.home.ProcessFaces(ctx, []landmark.Face{stranger})
		assert.False(t, obs.Confirmed)
		f.clock.Advance(300 * time.Millisecond)
	}
}

func TestHome_FaceEnrollment(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.home.EnrollFace(ctx, "  ", resident)
	assert.ErrorIs(t, err, ErrInvalidFace)
	_, err = f.home.EnrollFace(ctx, "Flat", landmark.Face{Box: landmark.Box{W: 10}})
	assert.ErrorIs(t, err, ErrInvalidFace)

	face, err := f.home.EnrollFace(ctx, "Resident", resident)
	require.NoError(t, err)
	assert.NotEmpty(t, face.ID)

	faces, err := f.home.ListFaces(ctx)
	require.NoError(t, err)
	assert.Len(t, faces, 1)

	require.NoError(t, f.home.RemoveFace(ctx, face.ID))
	assert.Zero(t, f.home.Status().AuthorizedFaces)
	assert.ErrorIs(t, f.home.RemoveFace(ctx, face.ID), store.ErrNotFound)
}

func TestHome_ReportCameraError(t *testing.T) {
	f := newFixture(t, "")

	calls := 0
	f.home.AddStatusListener(StatusListenerFunc(func(Status) { calls++ }))

	camErr := errors.New("device 0 did not open")
	f.home.ReportCameraError(camErr)
	f.home.ReportCameraError(camErr)

	st := f.home.Status()
	assert.Equal(t, "Camera unavailable: device 0 did not open", st.Text)
	assert.Equal(t, st.Text, st.CameraError)
	assert.Equal(t, 1, calls, "repeated errors notify once")

	f.home.ReportCameraError(nil)
	assert.Empty(t, f.home.Status().CameraError)
	assert.Equal(t, 2, calls)
}

func TestFeedbackGate_NilNext(t *testing.T) {
	g := NewFeedbackGate(nil)
	g.Speak("x")
	g.Vibrate([]int{1})
	g.Announce("y")
}
