// Package home coordinates the smart-home state: devices, the gesture
// debouncer, the intruder monitor, user settings, and the status line shown
// to the user. Every input surface (camera, HTTP, WebSocket, tray) goes
// through a Home.
package home

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/security"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/timeutil"
	"github.com/ayusman/mudra/internal/voice"
)

var (
	// ErrGesturesDisabled is returned by ProcessHand while gestures are off.
	ErrGesturesDisabled = errors.New("gesture control is disabled")
	// ErrInvalidFace is returned when enrolling a face without a usable box
	// or name.
	ErrInvalidFace = errors.New("invalid face")
)

// SettingsStore persists JSON values by key.
type SettingsStore interface {
	Get(ctx context.Context, key string, v interface{}) error
	Set(ctx context.Context, key string, v interface{}) error
}

// FaceStore persists authorized reference faces.
type FaceStore interface {
	Create(ctx context.Context, f *store.AuthorizedFace) error
	List(ctx context.Context) ([]*store.AuthorizedFace, error)
	Delete(ctx context.Context, id string) error
}

// EventLog reads and clears recorded security events.
type EventLog interface {
	List(ctx context.Context, limit int) ([]*store.SecurityEvent, error)
	Clear(ctx context.Context) (int64, error)
}

// StatusListener is told whenever the status changes.
type StatusListener interface {
	StatusChanged(Status)
}

// StatusListenerFunc adapts a function to StatusListener.
type StatusListenerFunc func(Status)

// StatusChanged calls f(s).
func (f StatusListenerFunc) StatusChanged(s Status) { f(s) }

// Status is a snapshot of what the user sees.
type Status struct {
	Text            string               `json:"text"`
	LastGesture     *gesture.Event       `json:"last_gesture,omitempty"`
	GesturesEnabled bool                 `json:"gestures_enabled"`
	Armed           bool                 `json:"armed"`
	AuthorizedFaces int                  `json:"authorized_faces"`
	Debounce        string               `json:"debounce"`
	Security        gesture.ConfirmState `json:"security"`
	CameraError     string               `json:"camera_error,omitempty"`
	Devices         []device.Device      `json:"devices"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Config wires a Home. Sink is required.
type Config struct {
	Sink    *device.Sink
	Monitor *security.Monitor
	// Feedback is the gate the sink speaks through; settings changes are
	// applied to it.
	Feedback *FeedbackGate
	Settings SettingsStore
	Faces    FaceStore
	Events   EventLog
	Debounce gesture.DebounceConfig
	Clock    timeutil.Clock
	// Defaults are used when no settings have been saved yet. Nil means
	// DefaultSettings.
	Defaults *Settings
}

// Home owns the application state.
type Home struct {
	ctx      context.Context
	sink     *device.Sink
	monitor  *security.Monitor
	debounce *gesture.Debouncer
	gate     *FeedbackGate
	store    SettingsStore
	faces    FaceStore
	events   EventLog
	clock    timeutil.Clock
	defaults Settings

	mu          sync.RWMutex
	settings    Settings
	text        string
	lastGesture *gesture.Event
	cameraErr   string
	updatedAt   time.Time
	listeners   []StatusListener
}

// New creates a Home. Call Init before use to load saved settings and
// authorized faces.
func New(cfg Config) *Home {
	h := &Home{
		ctx:      context.Background(),
		sink:     cfg.Sink,
		monitor:  cfg.Monitor,
		gate:     cfg.Feedback,
		store:    cfg.Settings,
		faces:    cfg.Faces,
		events:   cfg.Events,
		clock:    cfg.Clock,
		defaults: DefaultSettings(),
		text:     "Ready",
	}
	if h.clock == nil {
		h.clock = timeutil.RealClock{}
	}
	if h.gate == nil {
		h.gate = NewFeedbackGate(nil)
	}
	if h.monitor == nil {
		h.monitor = security.NewMonitor(security.MonitorConfig{
			Gate:  gesture.DefaultConfirmConfig(),
			Clock: h.clock,
		})
	}
	if cfg.Defaults != nil {
		h.defaults = *cfg.Defaults
	}
	h.settings = h.defaults
	h.updatedAt = h.clock.Now()

	dcfg := cfg.Debounce
	if dcfg.Clock == nil {
		dcfg.Clock = h.clock
	}
	h.debounce = gesture.NewDebouncer(dcfg, h.acceptGesture)

	h.sink.AddListener(device.ListenerFunc(h.deviceChanged))
	return h
}

// Init loads saved settings and the authorized faces.
func (h *Home) Init(ctx context.Context) error {
	s := h.defaults
	if h.store != nil {
		err := h.store.Get(ctx, settingsKey, &s)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load settings: %w", err)
		}
	}
	h.applySettings(s)
	return h.ReloadFaces(ctx)
}

// Close cancels any pending gesture.
func (h *Home) Close() {
	h.debounce.Cancel()
}

// AddStatusListener registers l for status changes.
func (h *Home) AddStatusListener(l StatusListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// ProcessHand classifies one frame's hand and feeds the finger count to the
// debouncer. A nil or incomplete hand returns gesture.ErrInvalidLandmarkSet
// and changes nothing.
func (h *Home) ProcessHand(hand *landmark.Hand) (gesture.Event, error) {
	if !h.Settings().GesturesEnabled {
		return gesture.Event{}, ErrGesturesDisabled
	}

	ev, err := gesture.Classify(hand, h.clock.Now())
	if err != nil {
		return gesture.Event{}, err
	}

	h.debounce.Observe(ev.Count)

	h.mu.Lock()
	changed := h.lastGesture == nil || h.lastGesture.Count != ev.Count || h.lastGesture.Tag != ev.Tag
	h.lastGesture = &ev
	if changed {
		h.updatedAt = ev.Timestamp
	}
	h.mu.Unlock()

	if changed {
		h.notify()
	}
	return ev, nil
}

// acceptGesture runs when the debouncer accepts a finger count. Zero
// selects no device.
func (h *Home) acceptGesture(count int) {
	if count <= 0 {
		return
	}
	if _, err := h.sink.Toggle(h.ctx, count); err != nil {
		monitoring.Logf("home: gesture toggle of device %d failed: %v", count, err)
	}
}

// ProcessFaces runs one frame of faces through the intruder monitor.
func (h *Home) ProcessFaces(ctx context.Context, faces []landmark.Face) security.Observation {
	obs := h.monitor.Observe(ctx, faces)
	if obs.Confirmed && obs.Event != nil {
		h.gate.Announce(obs.Event.Message)
		h.setText(obs.Event.Message)
	}
	return obs
}

// HandleVoice parses transcript and applies the resulting command.
func (h *Home) HandleVoice(ctx context.Context, transcript string) (voice.Command, error) {
	cmd, err := voice.Parse(transcript, h.deviceNames())
	if err != nil {
		h.gate.Speak("Sorry, I didn't understand that")
		h.setText(fmt.Sprintf("Command not recognized: %q", strings.TrimSpace(transcript)))
		return voice.Command{}, err
	}

	if err := h.execute(ctx, cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func (h *Home) execute(ctx context.Context, cmd voice.Command) error {
	if cmd.All {
		on := cmd.Action == voice.ActionOn
		if cmd.Action == voice.ActionToggle {
			on = !anyOn(h.sink.Devices())
		}
		h.SetAll(ctx, on)
		return nil
	}

	var err error
	switch cmd.Action {
	case voice.ActionOn:
		_, err = h.sink.Set(ctx, cmd.DeviceID, true)
	case voice.ActionOff:
		_, err = h.sink.Set(ctx, cmd.DeviceID, false)
	case voice.ActionToggle:
		_, err = h.sink.Toggle(ctx, cmd.DeviceID)
	default:
		err = fmt.Errorf("%w: action %q", voice.ErrUnrecognized, cmd.Action)
	}
	return err
}

// Devices returns every device.
func (h *Home) Devices() []device.Device {
	return h.sink.Devices()
}

// SetDevice turns one device on or off.
func (h *Home) SetDevice(ctx context.Context, id int, on bool) (device.Device, error) {
	return h.sink.Set(ctx, id, on)
}

// ToggleDevice flips one device.
func (h *Home) ToggleDevice(ctx context.Context, id int) (device.Device, error) {
	return h.sink.Toggle(ctx, id)
}

// SetAll turns every device on or off and returns the resulting devices.
func (h *Home) SetAll(ctx context.Context, on bool) []device.Device {
	devices := h.sink.SetAll(ctx, on)
	h.setText(fmt.Sprintf("All lights turned %s", stateWord(on)))
	return devices
}

// Settings returns the current settings.
func (h *Home) Settings() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// GesturesEnabled reports whether gesture control is on.
func (h *Home) GesturesEnabled() bool {
	return h.Settings().GesturesEnabled
}

// Armed reports whether the intruder monitor is armed.
func (h *Home) Armed() bool {
	return h.Settings().Armed
}

// UpdateSettings saves s and applies it. Nothing changes if saving fails.
func (h *Home) UpdateSettings(ctx context.Context, s Settings) (Settings, error) {
	if h.store != nil {
		if err := h.store.Set(ctx, settingsKey, s); err != nil {
			return h.Settings(), fmt.Errorf("save settings: %w", err)
		}
	}
	h.applySettings(s)
	h.notify()
	return s, nil
}

// SetGesturesEnabled turns gesture control on or off.
func (h *Home) SetGesturesEnabled(ctx context.Context, enabled bool) error {
	s := h.Settings()
	s.GesturesEnabled = enabled
	_, err := h.UpdateSettings(ctx, s)
	return err
}

// SetArmed arms or disarms the intruder monitor.
func (h *Home) SetArmed(ctx context.Context, armed bool) error {
	s := h.Settings()
	s.Armed = armed
	_, err := h.UpdateSettings(ctx, s)
	return err
}

func (h *Home) applySettings(s Settings) {
	h.mu.Lock()
	h.settings = s
	h.updatedAt = h.clock.Now()
	h.mu.Unlock()

	h.gate.Apply(s)
	if h.monitor.Armed() != s.Armed {
		h.monitor.SetArmed(s.Armed)
	}
	if !s.GesturesEnabled {
		h.debounce.Reset()
	}
}

// ReloadFaces refreshes the monitor's reference faces from the face store.
func (h *Home) ReloadFaces(ctx context.Context) error {
	if h.faces == nil {
		return nil
	}
	stored, err := h.faces.List(ctx)
	if err != nil {
		return fmt.Errorf("load authorized faces: %w", err)
	}
	refs := make([]landmark.Face, len(stored))
	for i, f := range stored {
		refs[i] = f.Face
	}
	h.monitor.SetAuthorized(refs)
	return nil
}

// ListFaces returns the authorized faces.
func (h *Home) ListFaces(ctx context.Context) ([]*store.AuthorizedFace, error) {
	if h.faces == nil {
		return nil, nil
	}
	return h.faces.List(ctx)
}

// EnrollFace stores face as an authorized reference under name.
func (h *Home) EnrollFace(ctx context.Context, name string, face landmark.Face) (*store.AuthorizedFace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidFace)
	}
	if !face.Box.Valid() {
		return nil, fmt.Errorf("%w: box must have a positive size", ErrInvalidFace)
	}
	if h.faces == nil {
		return nil, errors.New("no face store configured")
	}

	f := &store.AuthorizedFace{Name: name, Face: face}
	if err := h.faces.Create(ctx, f); err != nil {
		return nil, err
	}
	if err := h.ReloadFaces(ctx); err != nil {
		return nil, err
	}
	h.notify()
	return f, nil
}

// RemoveFace deletes an authorized face.
func (h *Home) RemoveFace(ctx context.Context, id string) error {
	if h.faces == nil {
		return store.ErrNotFound
	}
	if err := h.faces.Delete(ctx, id); err != nil {
		return err
	}
	if err := h.ReloadFaces(ctx); err != nil {
		return err
	}
	h.notify()
	return nil
}

// SecurityEvents returns up to limit recorded events, newest first.
func (h *Home) SecurityEvents(ctx context.Context, limit int) ([]*store.SecurityEvent, error) {
	if h.events == nil {
		return nil, nil
	}
	return h.events.List(ctx, limit)
}

// ClearSecurityEvents deletes every recorded event. Callers confirm with
// the user first.
func (h *Home) ClearSecurityEvents(ctx context.Context) (int64, error) {
	if h.events == nil {
		return 0, nil
	}
	n, err := h.events.Clear(ctx)
	if err != nil {
		return 0, err
	}
	h.setText(fmt.Sprintf("Cleared %d security events", n))
	return n, nil
}

// ReportCameraError shows a camera failure in the status line. The camera
// is not retried. A nil error clears a previous failure.
func (h *Home) ReportCameraError(err error) {
	msg := ""
	if err != nil {
		msg = fmt.Sprintf("Camera unavailable: %v", err)
	}

	h.mu.Lock()
	if msg == h.cameraErr {
		h.mu.Unlock()
		return
	}
	h.cameraErr = msg
	if msg != "" {
		h.text = msg
	}
	h.updatedAt = h.clock.Now()
	h.mu.Unlock()

	if err != nil {
		monitoring.Logf("home: %s", msg)
	}
	h.notify()
}

// Status returns a snapshot of the current status.
func (h *Home) Status() Status {
	h.mu.RLock()
	st := Status{
		Text:            h.text,
		GesturesEnabled: h.settings.GesturesEnabled,
		Armed:           h.settings.Armed,
		CameraError:     h.cameraErr,
		UpdatedAt:       h.updatedAt,
	}
	if h.lastGesture != nil {
		ev := *h.lastGesture
		st.LastGesture = &ev
	}
	h.mu.RUnlock()

	st.AuthorizedFaces = h.monitor.Authorized()
	st.Security = h.monitor.Gate()
	st.Debounce = h.debounce.State().Phase.String()
	st.Devices = h.sink.Devices()
	return st
}

func (h *Home) deviceChanged(d device.Device) {
	h.setText(fmt.Sprintf("%s turned %s", d.Name, d.StateWord()))
}

func (h *Home) setText(text string) {
	h.mu.Lock()
	h.text = text
	h.updatedAt = h.clock.Now()
	h.mu.Unlock()
	h.notify()
}

func (h *Home) notify() {
	h.mu.RLock()
	listeners := append([]StatusListener(nil), h.listeners...)
	h.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	st := h.Status()
	for _, l := range listeners {
		l.StatusChanged(st)
	}
}

func (h *Home) deviceNames() []string {
	devices := h.sink.Devices()
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names
}

func stateWord(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func anyOn(devices []device.Device) bool {
	for _, d := range devices {
		if d.On {
			return true
		}
	}
	return false
}
