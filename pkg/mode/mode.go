// Package mode holds the active control mode and the admission rules that
// decide which symbolic events may reach the dispatcher. Exactly one mode is
// active at a time; transitions happen only on explicit selection requests.
// Safety degradation never changes the recorded selection, it only makes
// admission behave as if the vehicle were idle.
package mode

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/pkg/events"
)

// Mode is one control modality owning the command stream.
type Mode int

const (
	ModeIdle Mode = iota
	ModeManual
	ModeGesture
	ModeVoice
	ModeVision
)

// String returns the mode name used in logs, config, and the dashboard.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeManual:
		return "manual"
	case ModeGesture:
		return "gesture"
	case ModeVoice:
		return "voice"
	case ModeVision:
		return "vision"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a known mode constant.
func (m Mode) Valid() bool {
	return m >= ModeIdle && m <= ModeVision
}

// Parse maps a mode name to its constant.
func Parse(name string) (Mode, error) {
	switch name {
	case "idle":
		return ModeIdle, nil
	case "manual":
		return ModeManual, nil
	case "gesture":
		return ModeGesture, nil
	case "voice":
		return ModeVoice, nil
	case "vision":
		return ModeVision, nil
	default:
		return ModeIdle, fmt.Errorf("unknown mode %q", name)
	}
}

// Verdict is the admission decision for one event.
type Verdict struct {
	Allow  bool
	Reason string
}

func allow() Verdict {
	return Verdict{Allow: true}
}

func deny(reason string) Verdict {
	return Verdict{Reason: reason}
}

// Controller owns the selected mode. Select runs on the engine goroutine
// only; the mutex exists so observers can read concurrently.
type Controller struct {
	mu       sync.RWMutex
	selected Mode
}

// NewController starts in idle.
func NewController() *Controller {
	return &Controller{selected: ModeIdle}
}

// Selected returns the current mode.
func (c *Controller) Selected() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// Select switches to the requested mode. Returns false when the request is
// invalid or already active.
func (c *Controller) Select(m Mode) bool {
	if !m.Valid() {
		log.Warn("mode selection rejected", "mode", int(m))
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m == c.selected {
		return false
	}
	log.Info("control mode changed", "from", c.selected.String(), "to", m.String())
	c.selected = m
	return true
}

// Admit decides whether ev may proceed to the dispatcher. When degraded is
// true the decision is taken as if the selected mode were idle, without
// touching the recorded selection.
func (c *Controller) Admit(ev events.Event, degraded bool) Verdict {
	effective := c.Selected()
	if degraded {
		effective = ModeIdle
	}
	return admitUnder(effective, ev)
}

func admitUnder(m Mode, ev events.Event) Verdict {
	// Safety and bookkeeping events pass in every mode.
	switch ev.Kind {
	case events.KindShutdown, events.KindTelemetryLost, events.KindTelemetry, events.KindVisionResult:
		return allow()
	}

	switch m {
	case ModeIdle:
		if ev.Kind == events.KindVisionQuery {
			return allow()
		}
		return deny("idle admits vision queries only")

	case ModeManual:
		if ev.Kind == events.KindManual {
			return allow()
		}
		return deny("manual mode admits manual input only")

	case ModeGesture:
		switch {
		case ev.Kind == events.KindGesture:
			return allow()
		case ev.Kind == events.KindManual && ev.Action.IsSafety():
			return allow()
		}
		return deny("gesture mode admits gestures and safety overrides only")

	case ModeVoice:
		switch {
		case ev.Kind == events.KindVoice:
			return allow()
		case ev.Kind == events.KindManual && ev.Action.IsSafety():
			return allow()
		}
		return deny("voice mode admits voice commands and safety overrides only")

	case ModeVision:
		if ev.Kind == events.KindVisionQuery {
			return allow()
		}
		return deny("vision mode observes, it does not steer")
	}

	return deny("unknown mode")
}
