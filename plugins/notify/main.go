// Package main provides a desktop notification plugin. It shows device
// changes and intruder alerts using osascript on macOS and notify-send
// elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request mirrors the payload written by the plugin executor.
type Request struct {
	Event  string          `json:"event"`
	Device *Device         `json:"device,omitempty"`
	Alert  *Alert          `json:"alert,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Device is the subset of the device payload this plugin reads.
type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	On   bool   `json:"on"`
}

// Alert is the subset of the security event payload this plugin reads.
type Alert struct {
	Kind  string `json:"kind"`
	Faces int    `json:"faces"`
}

// Response is written to stdout for the plugin executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type config struct {
	Devices bool `json:"devices"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	cfg := config{Devices: true}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("invalid config: %w", err))
			return
		}
	}

	title, body, ok := message(req, cfg)
	if !ok {
		writeResponse(nil)
		return
	}
	writeResponse(notify(title, body))
}

// message builds the notification text, or ok=false when the event should
// not be shown.
func message(req Request, cfg config) (title, body string, ok bool) {
	switch req.Event {
	case "device":
		if req.Device == nil || !cfg.Devices {
			return "", "", false
		}
		state := "off"
		if req.Device.On {
			state = "on"
		}
		return "Mudra", fmt.Sprintf("%s turned %s", req.Device.Name, state), true
	case "alert":
		if req.Alert == nil {
			return "", "", false
		}
		return "Mudra security", fmt.Sprintf("Intruder detected (%d face(s))", req.Alert.Faces), true
	}
	return "", "", false
}

func notify(title, body string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.Command("osascript", "-e", fmt.Sprintf("display notification %q with title %q", body, title))
	} else {
		cmd = exec.Command("notify-send", title, body)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
