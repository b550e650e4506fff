// Package device holds the in-memory table of controllable devices and
// mirrors every state change to a remote store, a local fallback, and the
// user-facing feedback channels.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Count is the number of devices. Device IDs run from 1 to Count and map
// one-to-one onto finger counts.
const Count = 4

var (
	// ErrUnknownDevice is returned for an ID outside 1..Count.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrRemoteSync wraps a failed remote mirror write. It is logged and
	// recorded in the fallback store, never returned to callers of Set.
	ErrRemoteSync = errors.New("remote sync failed")
)

// Vibration patterns in milliseconds.
var (
	PatternOn  = []int{200}
	PatternOff = []int{100, 50, 100}
)

// DefaultNames are the device names used when none are configured.
var DefaultNames = []string{"Light 1", "Light 2", "Light 3", "Light 4"}

// Device is one controllable device.
type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	On   bool   `json:"on"`
}

// StateWord returns "on" or "off".
func (d Device) StateWord() string {
	return stateWord(d.On)
}

func stateWord(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// RemoteStore is the remote key-value mirror of device state.
type RemoteStore interface {
	// Fetch returns the remote state keyed by device ID. Devices missing
	// from the remote are absent from the map.
	Fetch(ctx context.Context) (map[int]bool, error)
	// Put writes one device state.
	Put(ctx context.Context, id int, on bool) error
}

// FallbackStore persists device state locally when the remote is unreachable.
type FallbackStore interface {
	SaveFallback(ctx context.Context, id int, on bool, at time.Time) error
	LoadFallback(ctx context.Context) (map[int]bool, error)
}

// Feedback delivers fire-and-forget user feedback. Implementations must not
// block for long; a missing capability is a silent no-op.
type Feedback interface {
	Speak(text string)
	Vibrate(pattern []int)
	Announce(text string)
}

// Listener is notified after a device changes state.
type Listener interface {
	DeviceChanged(d Device)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Device)

// DeviceChanged calls f(d).
func (f ListenerFunc) DeviceChanged(d Device) { f(d) }

func validID(id int) error {
	if id < 1 || id > Count {
		return fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	return nil
}
