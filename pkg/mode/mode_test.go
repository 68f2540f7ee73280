package mode

import (
	"testing"

	"github.com/teslashibe/go-tello/pkg/command"
	"github.com/teslashibe/go-tello/pkg/events"
)

func TestParse_RoundTrip(t *testing.T) {
	for m := ModeIdle; m <= ModeVision; m++ {
		parsed, err := Parse(m.String())
		if err != nil {
			t.Errorf("Parse(%q): %v", m.String(), err)
		}
		if parsed != m {
			t.Errorf("Parse(%q): got %v, want %v", m.String(), parsed, m)
		}
	}
	if _, err := Parse("autopilot"); err == nil {
		t.Error("Parse accepted an unknown mode")
	}
}

func TestSelect(t *testing.T) {
	c := NewController()
	if c.Selected() != ModeIdle {
		t.Fatalf("initial mode: got %v, want idle", c.Selected())
	}
	if !c.Select(ModeGesture) {
		t.Error("valid selection rejected")
	}
	if c.Select(ModeGesture) {
		t.Error("re-selecting the active mode reported a change")
	}
	if c.Select(Mode(99)) {
		t.Error("invalid mode accepted")
	}
	if c.Selected() != ModeGesture {
		t.Errorf("mode: got %v, want gesture", c.Selected())
	}
}

// eventFor builds one representative event per kind. Manual events come in
// two flavors since safety overrides admit differently from movement.
func testEvents() map[string]events.Event {
	return map[string]events.Event{
		"gesture":        events.NewGesture("forward", 0.95),
		"voice":          events.NewVoice("take off"),
		"vision_query":   events.NewVisionQuery("q1", "what do you see"),
		"vision_result":  events.NewVisionResult("q1", "a chair", nil),
		"manual_move":    events.NewManual(command.ActionMoveForward),
		"manual_land":    events.NewManual(command.ActionLand),
		"manual_takeoff": events.NewManual(command.ActionTakeOff),
		"telemetry":      events.NewTelemetry(events.Telemetry{Battery: 80}),
		"telemetry_lost": events.NewTelemetryLost(),
		"shutdown":       events.NewShutdown(),
	}
}

// TestAdmit_Table checks the full mode x event admission cross-product.
func TestAdmit_Table(t *testing.T) {
	// admitted[mode] lists the event labels allowed through in that mode;
	// everything else must be denied.
	admitted := map[Mode][]string{
		ModeIdle:    {"vision_query"},
		ModeManual:  {"manual_move", "manual_land", "manual_takeoff"},
		ModeGesture: {"gesture", "manual_land", "manual_takeoff"},
		ModeVoice:   {"voice", "manual_land", "manual_takeoff"},
		ModeVision:  {"vision_query"},
	}
	// Safety and bookkeeping events pass in every mode.
	always := []string{"telemetry", "telemetry_lost", "shutdown", "vision_result"}

	evs := testEvents()
	for m := ModeIdle; m <= ModeVision; m++ {
		allow := make(map[string]bool)
		for _, label := range admitted[m] {
			allow[label] = true
		}
		for _, label := range always {
			allow[label] = true
		}

		c := NewController()
		c.Select(m)
		for label, ev := range evs {
			v := c.Admit(ev, false)
			if v.Allow != allow[label] {
				t.Errorf("mode %v, event %s: got allow=%v, want %v (reason %q)",
					m, label, v.Allow, allow[label], v.Reason)
			}
			if !v.Allow && v.Reason == "" {
				t.Errorf("mode %v, event %s: denial without a reason", m, label)
			}
		}
	}
}

// TestAdmit_Degraded forces every mode to behave as idle without touching
// the recorded selection.
func TestAdmit_Degraded(t *testing.T) {
	evs := testEvents()
	for m := ModeIdle; m <= ModeVision; m++ {
		c := NewController()
		c.Select(m)

		if v := c.Admit(evs["manual_land"], true); v.Allow {
			t.Errorf("mode %v degraded: manual land admitted, want idle behavior", m)
		}
		if v := c.Admit(evs["gesture"], true); v.Allow {
			t.Errorf("mode %v degraded: gesture admitted", m)
		}
		if v := c.Admit(evs["vision_query"], true); !v.Allow {
			t.Errorf("mode %v degraded: vision query denied, idle admits it", m)
		}
		if v := c.Admit(evs["shutdown"], true); !v.Allow {
			t.Errorf("mode %v degraded: shutdown denied", m)
		}

		if c.Selected() != m {
			t.Errorf("degradation changed the recorded selection to %v", c.Selected())
		}
	}
}
