package safety

import (
	"testing"
	"time"

	"github.com/teslashibe/go-tello/pkg/events"
)

func sample(battery int, airborne bool) events.Telemetry {
	return events.Telemetry{Battery: battery, Height: 80, Airborne: airborne}
}

func TestObserveTelemetry_UpdatesVehicleState(t *testing.T) {
	s := New(Config{})
	now := time.Now()

	if d := s.ObserveTelemetry(sample(80, true), now); d != DirectiveNone {
		t.Errorf("directive: got %v, want none", d)
	}

	v := s.Vehicle()
	if !v.Airborne || v.Battery != 80 || !v.TelemetryFresh {
		t.Errorf("vehicle state not folded in: %+v", v)
	}
	if !v.LastTelemetry.Equal(now) {
		t.Errorf("last telemetry: got %v, want %v", v.LastTelemetry, now)
	}
	if !s.Airborne() {
		t.Error("Airborne() disagrees with the snapshot")
	}
}

func TestTelemetryStale_DegradesAndRecovers(t *testing.T) {
	s := New(Config{})
	now := time.Now()

	s.ObserveTelemetry(sample(80, true), now)
	s.TelemetryStale(now.Add(6 * time.Second))

	if s.State() != StateDegraded || !s.Degraded() {
		t.Fatalf("state: got %v, want degraded", s.State())
	}
	if s.Vehicle().TelemetryFresh {
		t.Error("telemetry still marked fresh")
	}

	// Fresh telemetry recovers.
	s.ObserveTelemetry(sample(80, true), now.Add(7*time.Second))
	if s.State() != StateNominal {
		t.Errorf("state after resume: got %v, want nominal", s.State())
	}
	if !s.Vehicle().TelemetryFresh {
		t.Error("telemetry not marked fresh after resume")
	}
}

func TestBatteryLow_RequestsLandingStaysNominal(t *testing.T) {
	s := New(Config{BatteryLow: 15, BatteryCritical: 10})

	if d := s.ObserveTelemetry(sample(15, true), time.Now()); d != DirectiveLand {
		t.Errorf("directive: got %v, want land", d)
	}
	if s.State() != StateNominal {
		t.Errorf("low battery escalated to %v", s.State())
	}

	// On the ground a low battery asks for nothing.
	if d := s.ObserveTelemetry(sample(15, false), time.Now()); d != DirectiveNone {
		t.Errorf("grounded directive: got %v, want none", d)
	}
}

func TestBatteryCritical_Emergency(t *testing.T) {
	s := New(Config{BatteryLow: 15, BatteryCritical: 10})

	if d := s.ObserveTelemetry(sample(9, true), time.Now()); d != DirectiveEmergency {
		t.Errorf("directive: got %v, want emergency", d)
	}
	if !s.Emergency() {
		t.Error("supervisor not in emergency")
	}
	if s.Reason() == "" {
		t.Error("emergency reason not recorded")
	}
}

func TestEmergency_IsTerminal(t *testing.T) {
	s := New(Config{})
	s.Escalate("shutdown requested")

	if !s.Emergency() {
		t.Fatal("escalation did not reach emergency")
	}
	if s.Escalate("again") {
		t.Error("second escalation reported a transition")
	}

	// Telemetry keeps the vehicle snapshot current but cannot recover the
	// session.
	if d := s.ObserveTelemetry(sample(90, true), time.Now()); d != DirectiveNone {
		t.Errorf("directive in emergency: got %v, want none", d)
	}
	if s.State() != StateEmergency {
		t.Errorf("state: got %v, want emergency", s.State())
	}

	s.TelemetryStale(time.Now())
	if s.State() != StateEmergency {
		t.Error("stale telemetry downgraded an emergency")
	}
}

func TestZeroBattery_FieldAbsentIsIgnored(t *testing.T) {
	s := New(Config{})
	if d := s.ObserveTelemetry(sample(0, true), time.Now()); d != DirectiveNone {
		t.Errorf("directive: got %v, want none for absent battery field", d)
	}
}
