package home

import (
	"sync"

	"github.com/ayusman/mudra/internal/device"
)

// settingsKey is the settings-table key the user settings are stored under.
const settingsKey = "user_settings"

// Settings are the user-adjustable preferences. The accessibility flags are
// applied by the web client and gate which feedback channels fire.
type Settings struct {
	HighContrast    bool `json:"high_contrast"`
	LargeText       bool `json:"large_text"`
	ScreenReader    bool `json:"screen_reader"`
	Vibration       bool `json:"vibration"`
	VoiceFeedback   bool `json:"voice_feedback"`
	GesturesEnabled bool `json:"gestures_enabled"`
	Armed           bool `json:"armed"`
}

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() Settings {
	return Settings{
		Vibration:       true,
		VoiceFeedback:   true,
		GesturesEnabled: true,
	}
}

// FeedbackGate forwards feedback to next only for the channels the current
// settings enable.
type FeedbackGate struct {
	next device.Feedback

	mu       sync.RWMutex
	settings Settings
}

var _ device.Feedback = (*FeedbackGate)(nil)

// NewFeedbackGate wraps next with DefaultSettings applied.
func NewFeedbackGate(next device.Feedback) *FeedbackGate {
	return &FeedbackGate{next: next, settings: DefaultSettings()}
}

// Apply switches the gate to s.
func (g *FeedbackGate) Apply(s Settings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settings = s
}

func (g *FeedbackGate) current() Settings {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.settings
}

// Speak forwards text while voice feedback is enabled.
func (g *FeedbackGate) Speak(text string) {
	if g.next != nil && g.current().VoiceFeedback {
		g.next.Speak(text)
	}
}

// Vibrate forwards pattern while vibration is enabled.
func (g *FeedbackGate) Vibrate(pattern []int) {
	if g.next != nil && g.current().Vibration {
		g.next.Vibrate(pattern)
	}
}

// Announce forwards text while screen reader announcements are enabled.
func (g *FeedbackGate) Announce(text string) {
	if g.next != nil && g.current().ScreenReader {
		g.next.Announce(text)
	}
}
