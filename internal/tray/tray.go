// Package tray provides a system tray menu for local capture.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/signlearn/internal/detector"
	"github.com/ayusman/signlearn/internal/pipeline"
)

// Tray shows the capture state and the latest recognized sign. It is a
// pipeline.Sink so it can be attached to the camera session.
type Tray struct {
	target   string
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()

	mu      sync.RWMutex
	enabled bool
	last    string
	matched int

	// Menu items stored for later updates
	menuToggle  *systray.MenuItem
	menuLast    *systray.MenuItem
	menuMatched *systray.MenuItem
}

// New creates a Tray with capture enabled. target is the gloss being
// practiced and may be empty.
func New(target string) *Tray {
	return &Tray{
		target:  target,
		enabled: true,
	}
}

// OnToggle sets the callback run when capture is switched on or off.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback run by "Open in Browser".
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run before the tray exits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops Run from another goroutine.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("SignLearn")
	systray.SetTooltip("SignLearn sign recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle camera capture")
	systray.AddSeparator()

	if t.target != "" {
		menuTarget := systray.AddMenuItem("Practicing: "+t.target, "Target sign")
		menuTarget.Disable()
	}
	t.menuLast = systray.AddMenuItem(lastTitle(t.last), "Last recognized sign")
	t.menuLast.Disable()
	t.menuMatched = systray.AddMenuItem(matchedTitle(t.matched), "Windows that matched the target")
	t.menuMatched.Disable()
	if t.target == "" {
		t.menuMatched.Hide()
	}
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser...", "Open the practice page")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit SignLearn")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

func (t *Tray) OnLandmarks(string, *detector.Frame) {}

// OnPrediction updates the last sign and the matched counter.
func (t *Tray) OnPrediction(p pipeline.Prediction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = p.Label()
	if p.Matched() {
		t.matched++
	}

	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(t.last))
	}
	if t.menuMatched != nil {
		t.menuMatched.SetTitle(matchedTitle(t.matched))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Last returns the last label shown and how many predictions matched the target.
func (t *Tray) Last() (string, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.matched
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Capturing"
	}
	return "○ Paused"
}

func lastTitle(label string) string {
	if label == "" {
		return "Last sign: none"
	}
	return "Last sign: " + label
}

func matchedTitle(n int) string {
	return fmt.Sprintf("Matched: %d", n)
}
