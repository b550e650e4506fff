// Package feedback provides implementations of the user feedback channels:
// speech, vibration, and screen reader announcements.
package feedback

import (
	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/monitoring"
)

var (
	_ device.Feedback = Nop{}
	_ device.Feedback = Log{}
	_ device.Feedback = Multi{}
)

// Nop ignores all feedback.
type Nop struct{}

func (Nop) Speak(string) {}
func (Nop) Vibrate([]int) {}
func (Nop) Announce(string) {}

// Log writes every feedback call to the application log.
type Log struct{}

// Speak logs the utterance.
func (Log) Speak(text string) { monitoring.Logf("feedback: speak %q", text) }

// Vibrate logs the pattern.
func (Log) Vibrate(pattern []int) { monitoring.Logf("feedback: vibrate %v", pattern) }

// Announce logs the announcement.
func (Log) Announce(text string) { monitoring.Logf("feedback: announce %q", text) }

// Multi fans feedback out to several sinks in order.
type Multi []device.Feedback

// Speak forwards to every sink.
func (m Multi) Speak(text string) {
	for _, f := range m {
		f.Speak(text)
	}
}

// Vibrate forwards to every sink.
func (m Multi) Vibrate(pattern []int) {
	for _, f := range m {
		f.Vibrate(pattern)
	}
}

// Announce forwards to every sink.
func (m Multi) Announce(text string) {
	for _, f := range m {
		f.Announce(text)
	}
}
