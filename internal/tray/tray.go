// Package tray provides a system tray menu for the Mudra home controller.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/home"
)

// Tray represents the system tray application. Menu state follows the
// status updates it receives, so toggles made elsewhere show up here too.
type Tray struct {
	onGestures func(enabled bool)
	onArmed    func(armed bool)
	onSettings func()
	onQuit     func()

	mu          sync.RWMutex
	gestures    bool
	armed       bool
	lastGesture string
	text        string

	// Menu items stored for later updates
	menuGestures    *systray.MenuItem
	menuArmed       *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuStatus      *systray.MenuItem
}

var _ home.StatusListener = (*Tray)(nil)

// New creates a new Tray with gestures enabled and security disarmed.
func New() *Tray {
	return &Tray{gestures: true}
}

// OnGestures sets the callback for the gesture control toggle.
func (t *Tray) OnGestures(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onGestures = fn
}

// OnArmed sets the callback for the security toggle.
func (t *Tray) OnArmed(fn func(armed bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onArmed = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra Home Control")

	t.mu.Lock()
	t.menuGestures = systray.AddMenuItem(gesturesLabel(t.gestures), "Toggle gesture control")
	t.menuArmed = systray.AddMenuItem(armedLabel(t.armed), "Toggle intruder detection")
	systray.AddSeparator()

	t.menuLastGesture = systray.AddMenuItem(lastGestureLabel(t.lastGesture), "Last detected gesture")
	t.menuLastGesture.Disable()
	t.menuStatus = systray.AddMenuItem(statusLabel(t.text), "Current status")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuGestures.ClickedCh:
				t.handleGestures()
			case <-t.menuArmed.ClickedCh:
				t.handleArmed()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleGestures requests the opposite of the current gesture state. The
// menu itself changes when the resulting status arrives.
func (t *Tray) handleGestures() {
	t.mu.RLock()
	want := !t.gestures
	callback := t.onGestures
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(want)
	}
}

func (t *Tray) handleArmed() {
	t.mu.RLock()
	want := !t.armed
	callback := t.onArmed
	t.mu.RUnlock()

	if callback != nil {
		callback(want)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// StatusChanged updates the menu from a status snapshot.
func (t *Tray) StatusChanged(s home.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gestures = s.GesturesEnabled
	t.armed = s.Armed
	t.text = s.Text
	if s.LastGesture != nil {
		t.lastGesture = fmt.Sprintf("%s (%d)", s.LastGesture.Tag, s.LastGesture.Count)
	}

	if t.menuGestures != nil {
		t.menuGestures.SetTitle(gesturesLabel(t.gestures))
		t.menuArmed.SetTitle(armedLabel(t.armed))
		t.menuLastGesture.SetTitle(lastGestureLabel(t.lastGesture))
		t.menuStatus.SetTitle(statusLabel(t.text))
	}
}

// GesturesEnabled returns the gesture state last reported.
func (t *Tray) GesturesEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gestures
}

// Armed returns the security state last reported.
func (t *Tray) Armed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.armed
}

// LastGesture returns the label of the last reported gesture.
func (t *Tray) LastGesture() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastGesture
}

func gesturesLabel(enabled bool) string {
	if enabled {
		return "● Gestures enabled"
	}
	return "○ Gestures disabled"
}

func armedLabel(armed bool) string {
	if armed {
		return "● Security armed"
	}
	return "○ Security disarmed"
}

func lastGestureLabel(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}

func statusLabel(text string) string {
	if text == "" {
		return "Ready"
	}
	return text
}
