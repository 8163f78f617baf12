package capture

import "time"

// Capture rates and the idle timeout used by Activity.
const (
	IdleFPS            = 5
	ActiveFPS          = 15
	DefaultIdleTimeout = 2 * time.Second
)

// Mode is the capture mode chosen from recent motion.
type Mode int

const (
	ModeIdle Mode = iota
	ModeActive
)

func (m Mode) String() string {
	if m == ModeActive {
		return "active"
	}
	return "idle"
}

// FPS returns the capture rate for the mode.
func (m Mode) FPS() int {
	if m == ModeActive {
		return ActiveFPS
	}
	return IdleFPS
}

// Activity switches to active on motion and back to idle once no motion has
// been seen for the idle timeout. It is not safe for concurrent use.
type Activity struct {
	idleTimeout time.Duration
	mode        Mode
	lastMotion  time.Time
}

// NewActivity starts in idle mode. A non-positive timeout uses DefaultIdleTimeout.
func NewActivity(idleTimeout time.Duration) *Activity {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Activity{idleTimeout: idleTimeout}
}

// Observe records one motion sample taken at now and returns the resulting
// mode and whether it changed.
func (a *Activity) Observe(moving bool, now time.Time) (Mode, bool) {
	if moving {
		a.lastMotion = now
		if a.mode != ModeActive {
			a.mode = ModeActive
			return a.mode, true
		}
		return a.mode, false
	}

	if a.mode == ModeActive && now.Sub(a.lastMotion) > a.idleTimeout {
		a.mode = ModeIdle
		return a.mode, true
	}
	return a.mode, false
}

// Mode returns the current mode.
func (a *Activity) Mode() Mode {
	return a.mode
}
