// Package plugin runs external automation hooks. A plugin is an executable
// with a plugin.json manifest; it receives one JSON request on stdin per
// event it subscribes to and answers with one JSON response on stdout.
package plugin

import (
	"encoding/json"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/store"
)

// Events a plugin can subscribe to.
const (
	EventDevice = "device"
	EventAlert  = "alert"
)

// Manifest describes a plugin's metadata and subscriptions.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"`
	// Config is passed through to the plugin on every request.
	Config json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the manifest subscribes to event.
func (m Manifest) Handles(event string) bool {
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is sent to a plugin for one event. Exactly one of Device and
// Alert is set, matching Event.
type Request struct {
	Event  string               `json:"event"`
	Device *device.Device       `json:"device,omitempty"`
	Alert  *store.SecurityEvent `json:"alert,omitempty"`
	Config json.RawMessage      `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
