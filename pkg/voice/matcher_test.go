package voice

import (
	"testing"

	"github.com/teslashibe/go-tello/pkg/command"
)

func TestMatch_ExactPhrases(t *testing.T) {
	m := New()

	cases := []struct {
		phrase string
		action command.VehicleAction
	}{
		{"take off", command.ActionTakeOff},
		{"launch", command.ActionTakeOff},
		{"land", command.ActionLand},
		{"ground", command.ActionLand},
		{"strafe left", command.ActionMoveLeft},
		{"fly right", command.ActionMoveRight},
		{"ascend", command.ActionMoveUp},
		{"descend", command.ActionMoveDown},
		{"turn left", command.ActionRotateCCW},
		{"rotate right", command.ActionRotateCW},
		{"hover", command.ActionHover},
		{"hold position", command.ActionHover},
	}
	for _, tc := range cases {
		b, ok := m.Match(tc.phrase)
		if !ok {
			t.Errorf("%q: no match", tc.phrase)
			continue
		}
		if b.Action != tc.action {
			t.Errorf("%q: got %v, want %v", tc.phrase, b.Action, tc.action)
		}
	}
}

func TestMatch_NormalizesCaseAndPunctuation(t *testing.T) {
	m := New()
	b, ok := m.Match("  Take Off!  ")
	if !ok || b.Action != command.ActionTakeOff {
		t.Errorf("got (%v, %v), want takeoff", b.Action, ok)
	}
}

func TestMatch_FlipDirections(t *testing.T) {
	m := New()

	cases := []struct {
		phrase string
		flip   command.FlipDirection
	}{
		{"flip forward", command.FlipForward},
		{"do a back flip", command.FlipBack},
		{"flip left", command.FlipLeft},
		{"do a right flip", command.FlipRight},
	}
	for _, tc := range cases {
		b, ok := m.Match(tc.phrase)
		if !ok || b.Action != command.ActionFlip {
			t.Errorf("%q: got (%v, %v), want flip", tc.phrase, b.Action, ok)
			continue
		}
		if b.Flip != tc.flip {
			t.Errorf("%q: direction got %v, want %v", tc.phrase, b.Flip, tc.flip)
		}
	}
}

func TestMatch_ContainedSynonym(t *testing.T) {
	m := New()

	b, ok := m.Match("please land now")
	if !ok || b.Action != command.ActionLand {
		t.Errorf("embedded synonym: got (%v, %v), want land", b.Action, ok)
	}

	// "stop moving" must win over the shorter "stop" inside it.
	b, ok = m.Match("ok stop moving please")
	if !ok || b.Action != command.ActionHover {
		t.Errorf("longest synonym: got (%v, %v), want hover", b.Action, ok)
	}
}

func TestMatch_NoPartialWordContainment(t *testing.T) {
	m := New()
	// "island" contains "land" as a substring but not as a word, and is
	// phonetically distinct enough to stay unmatched.
	if b, ok := m.Match("we are on an island"); ok {
		t.Errorf("partial word matched: got %v", b.Action)
	}
}

func TestMatch_PhoneticFallback(t *testing.T) {
	m := New()

	// Near-miss transcriptions of single commands.
	cases := []struct {
		phrase string
		action command.VehicleAction
	}{
		{"lend", command.ActionLand},
		{"hoover", command.ActionHover},
		{"lanch", command.ActionTakeOff},
	}
	for _, tc := range cases {
		b, ok := m.Match(tc.phrase)
		if !ok {
			t.Errorf("%q: no phonetic match", tc.phrase)
			continue
		}
		if b.Action != tc.action {
			t.Errorf("%q: got %v, want %v", tc.phrase, b.Action, tc.action)
		}
	}
}

func TestMatch_MissReturnsFalse(t *testing.T) {
	m := New()
	for _, phrase := range []string{"", "   ", "what a beautiful sunset", "seventeen"} {
		if b, ok := m.Match(phrase); ok {
			t.Errorf("%q matched %v, want miss", phrase, b.Action)
		}
	}
}
