// Package voice turns recognized speech transcripts into device commands.
// Speech recognition itself happens in the browser; only text arrives here.
package voice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrUnrecognized is returned when a transcript names no action or no device.
var ErrUnrecognized = errors.New("unrecognized command")

// Action is what to do to the target devices.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionToggle Action = "toggle"
)

// Command is a parsed voice command. DeviceID is zero when All is set.
type Command struct {
	Action   Action `json:"action"`
	DeviceID int    `json:"device_id,omitempty"`
	All      bool   `json:"all,omitempty"`
}

func (c Command) String() string {
	if c.All {
		return fmt.Sprintf("%s all", c.Action)
	}
	return fmt.Sprintf("%s %d", c.Action, c.DeviceID)
}

var actionWords = map[string]Action{
	"on":         ActionOn,
	"enable":     ActionOn,
	"activate":   ActionOn,
	"start":      ActionOn,
	"off":        ActionOff,
	"disable":    ActionOff,
	"deactivate": ActionOff,
	"stop":       ActionOff,
	"kill":       ActionOff,
	"toggle":     ActionToggle,
	"flip":       ActionToggle,
	"switch":     ActionToggle,
}

var allWords = map[string]bool{
	"all":        true,
	"everything": true,
	"every":      true,
	"lights":     true,
}

var numberWords = map[string]int{
	"1": 1, "one": 1, "first": 1,
	"2": 2, "two": 2, "second": 2,
	"3": 3, "three": 3, "third": 3,
	"4": 4, "four": 4, "fourth": 4,
}

// homophones are only accepted right after a device noun ("light to").
var homophones = map[string]int{
	"won": 1,
	"to":  2, "too": 2,
	"for": 4, "fore": 4,
}

var deviceNouns = map[string]bool{
	"light":  true,
	"led":    true,
	"lamp":   true,
	"device": true,
	"number": true,
	"bulb":   true,
}

// Parse interprets transcript. names are the configured device names in ID
// order and bound the valid device numbers; a name match wins over a spoken
// number. The first on or off word decides the action; "switch", "flip" and
// "toggle" only toggle when neither appears.
func Parse(transcript string, names []string) (Command, error) {
	tokens := tokenize(transcript)
	if len(tokens) == 0 {
		return Command{}, fmt.Errorf("%w: empty transcript", ErrUnrecognized)
	}

	action, ok := findAction(tokens)
	if !ok {
		return Command{}, fmt.Errorf("%w: no action in %q", ErrUnrecognized, transcript)
	}

	cmd := Command{Action: action}
	if id := matchName(tokens, names); id > 0 {
		cmd.DeviceID = id
		return cmd, nil
	}
	if id := findNumber(tokens); id > 0 && id <= len(names) {
		cmd.DeviceID = id
		return cmd, nil
	}
	for _, tok := range tokens {
		if allWords[tok] {
			cmd.All = true
			return cmd, nil
		}
	}
	return Command{}, fmt.Errorf("%w: no device in %q", ErrUnrecognized, transcript)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func findAction(tokens []string) (Action, bool) {
	var fallback Action
	for _, tok := range tokens {
		a, ok := actionWords[tok]
		if !ok {
			continue
		}
		if a != ActionToggle {
			return a, true
		}
		if fallback == "" {
			fallback = a
		}
	}
	return fallback, fallback != ""
}

func findNumber(tokens []string) int {
	for i, tok := range tokens {
		if n, ok := numberWords[tok]; ok {
			return n
		}
		if n, err := strconv.Atoi(tok); err == nil {
			return n
		}
		if n, ok := homophones[tok]; ok && i > 0 && deviceNouns[tokens[i-1]] {
			return n
		}
	}
	return 0
}

// matchName returns the 1-based ID of the longest configured name whose
// tokens appear contiguously in the transcript.
func matchName(tokens, names []string) int {
	best, bestLen := 0, 0
	for i, name := range names {
		nt := tokenize(name)
		if len(nt) == 0 || len(nt) <= bestLen {
			continue
		}
		if containsSeq(tokens, nt) {
			best, bestLen = i+1, len(nt)
		}
	}
	return best
}

func containsSeq(haystack, needle []string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
