// Package safety supervises the session. It owns the vehicle state snapshot,
// degrades arbitration when telemetry goes stale, watches the battery, and
// escalates to a terminal emergency that lands the vehicle and ends the
// session.
package safety

import (
	"sync"
	"time"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/pkg/events"
)

// State is the supervisor condition.
type State int

const (
	// StateNominal means telemetry is fresh and arbitration runs normally.
	StateNominal State = iota

	// StateDegraded means telemetry went stale. Arbitration behaves as if
	// idle and the vehicle is held in a standing hover until it recovers.
	StateDegraded

	// StateEmergency is terminal. The vehicle is landed and every further
	// dispatch is rejected.
	StateEmergency
)

// String returns the state name used in logs and the dashboard.
func (s State) String() string {
	switch s {
	case StateNominal:
		return "nominal"
	case StateDegraded:
		return "degraded"
	case StateEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Directive is the safety action the engine must take after feeding the
// supervisor an observation.
type Directive int

const (
	// DirectiveNone requires nothing.
	DirectiveNone Directive = iota

	// DirectiveLand asks for an automatic landing; the session continues.
	DirectiveLand

	// DirectiveEmergency asks for the terminal land-and-shutdown path.
	DirectiveEmergency
)

// VehicleState is the supervisor-owned snapshot of the airframe. Other
// components read copies, never the original.
type VehicleState struct {
	Airborne       bool
	TelemetryFresh bool
	Battery        int
	Height         int
	LastTelemetry  time.Time
}

// Config holds the watchdog thresholds. Zero values fall back to defaults.
type Config struct {
	// BatteryLow triggers an automatic landing while airborne.
	BatteryLow int

	// BatteryCritical triggers the emergency path.
	BatteryCritical int
}

func (c Config) withDefaults() Config {
	if c.BatteryLow <= 0 {
		c.BatteryLow = 15
	}
	if c.BatteryCritical <= 0 {
		c.BatteryCritical = 10
	}
	return c
}

// Supervisor tracks session safety. State changes happen on the engine
// goroutine only; the mutex exists for observer snapshots.
type Supervisor struct {
	mu      sync.RWMutex
	cfg     Config
	state   State
	vehicle VehicleState

	// reason records what pushed the session into emergency.
	reason string
}

// New creates a Supervisor in the nominal state.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg.withDefaults()}
}

// State returns the current supervisor condition.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Degraded reports whether arbitration must behave as idle.
func (s *Supervisor) Degraded() bool {
	return s.State() == StateDegraded
}

// Emergency reports whether the session is terminal.
func (s *Supervisor) Emergency() bool {
	return s.State() == StateEmergency
}

// Vehicle returns a copy of the vehicle state snapshot.
func (s *Supervisor) Vehicle() VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vehicle
}

// Airborne satisfies the dispatcher's flight status interface.
func (s *Supervisor) Airborne() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vehicle.Airborne
}

// ObserveTelemetry folds one telemetry sample into the vehicle state,
// recovers from degraded operation, and runs the battery watchdog.
func (s *Supervisor) ObserveTelemetry(t events.Telemetry, now time.Time) Directive {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vehicle.Airborne = t.Airborne
	s.vehicle.Battery = t.Battery
	s.vehicle.Height = t.Height
	s.vehicle.TelemetryFresh = true
	s.vehicle.LastTelemetry = now

	if s.state == StateEmergency {
		return DirectiveNone
	}

	if s.state == StateDegraded {
		s.state = StateNominal
		log.Info("telemetry resumed, supervisor nominal")
	}

	// Battery of zero means the field was absent from the sample.
	if t.Battery <= 0 {
		return DirectiveNone
	}
	if t.Battery <= s.cfg.BatteryCritical {
		s.state = StateEmergency
		s.reason = "battery critical"
		log.Error("battery critical, emergency landing", "battery", t.Battery)
		return DirectiveEmergency
	}
	if t.Battery <= s.cfg.BatteryLow && t.Airborne {
		log.Warn("battery low, automatic landing", "battery", t.Battery)
		return DirectiveLand
	}
	return DirectiveNone
}

// TelemetryStale marks the vehicle link stale and degrades arbitration.
func (s *Supervisor) TelemetryStale(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vehicle.TelemetryFresh = false
	if s.state != StateNominal {
		return
	}
	s.state = StateDegraded
	log.Warn("telemetry stale, supervisor degraded",
		"last_telemetry", s.vehicle.LastTelemetry)
}

// Escalate moves the session into the terminal emergency state. Returns
// false when the supervisor was already there.
func (s *Supervisor) Escalate(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEmergency {
		return false
	}
	s.state = StateEmergency
	s.reason = reason
	log.Warn("supervisor emergency", "reason", reason)
	return true
}

// Reason returns what ended the session, empty while not in emergency.
func (s *Supervisor) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}
