// Package dispatch turns committed commands into vehicle directives. It owns
// the cooldown state, the one-outstanding-query rule for the vision channel,
// and the safety paths that bypass both.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/pkg/command"
)

// Transport is the vehicle side of the dispatcher. Implementations send the
// low-level directive and report success or failure of the acknowledgment.
type Transport interface {
	TakeOff() error
	Land() error
	Hover() error
	Move(action command.VehicleAction, cm int) error
	Rotate(action command.VehicleAction, degrees int) error
	Flip(d command.FlipDirection) error
}

// FlightStatus exposes the airborne flag owned by the safety supervisor.
type FlightStatus interface {
	Airborne() bool
}

// Config holds dispatcher tuning. Zero values fall back to defaults.
type Config struct {
	// MoveDistanceCM is the magnitude for linear moves.
	MoveDistanceCM int

	// RotateDegrees is the magnitude for rotations.
	RotateDegrees int

	// MovementCooldown is the per-kind cooldown for everything except
	// vision queries.
	MovementCooldown time.Duration

	// VisionCooldown is the shared cooldown for the vision query channel.
	VisionCooldown time.Duration

	// HoverInterval paces the standing hover issued while idle or degraded.
	HoverInterval time.Duration

	// LandRetries bounds retry attempts for the final safety land.
	LandRetries int

	// LandRetryDelay is the pause between safety land attempts.
	LandRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MoveDistanceCM <= 0 {
		c.MoveDistanceCM = 30
	}
	if c.RotateDegrees <= 0 {
		c.RotateDegrees = 45
	}
	if c.MovementCooldown <= 0 {
		c.MovementCooldown = 500 * time.Millisecond
	}
	if c.VisionCooldown <= 0 {
		c.VisionCooldown = 3 * time.Second
	}
	if c.HoverInterval <= 0 {
		c.HoverInterval = 2 * time.Second
	}
	if c.LandRetries <= 0 {
		c.LandRetries = 3
	}
	if c.LandRetryDelay <= 0 {
		c.LandRetryDelay = 500 * time.Millisecond
	}
	return c
}

// Snapshot is the dispatcher state exposed to observers.
type Snapshot struct {
	Current      command.Command
	Outstanding  string
	ShuttingDown bool
}

// Dispatcher serializes committed commands onto the vehicle transport.
// Dispatch runs on the engine goroutine only; the mutex exists for observer
// snapshots.
type Dispatcher struct {
	mu        sync.RWMutex
	cfg       Config
	transport Transport
	status    FlightStatus

	last        map[command.VehicleAction]time.Time
	lastVision  time.Time
	lastHover   time.Time
	outstanding string
	current     command.Command
	shutdown    bool
}

// New creates a Dispatcher over the given transport and flight status.
func New(cfg Config, transport Transport, status FlightStatus) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg.withDefaults(),
		transport: transport,
		status:    status,
		last:      make(map[command.VehicleAction]time.Time),
	}
}

// Dispatch forwards one committed command. It never queues: a command that
// cannot execute now is rejected with a typed error and forgotten.
func (d *Dispatcher) Dispatch(cmd command.Command, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return ErrShuttingDown
	}

	switch cmd.Action {
	case command.ActionQueryVision:
		return d.dispatchVision(cmd, now)
	case command.ActionTakeOff:
		if d.status.Airborne() {
			return ErrInvalidTransition
		}
	case command.ActionLand:
		if !d.status.Airborne() {
			log.Debug("land requested while already landed")
			return nil
		}
	}

	if cool := d.cfg.MovementCooldown; now.Sub(d.last[cmd.Action]) < cool {
		return ErrRateLimited
	}

	if err := d.forward(cmd); err != nil {
		return &TransportError{Op: cmd.Action.String(), Cause: err}
	}

	d.last[cmd.Action] = now
	d.current = cmd
	log.Info("command dispatched",
		"action", cmd.Action.String(), "source", cmd.Source.String())
	return nil
}

func (d *Dispatcher) dispatchVision(cmd command.Command, now time.Time) error {
	if d.outstanding != "" {
		return ErrBusy
	}
	if now.Sub(d.lastVision) < d.cfg.VisionCooldown {
		return ErrRateLimited
	}
	d.lastVision = now
	d.current = cmd
	log.Info("vision query admitted", "source", cmd.Source.String())
	return nil
}

// forward maps the action onto the transport call. Caller holds the lock.
func (d *Dispatcher) forward(cmd command.Command) error {
	switch cmd.Action {
	case command.ActionTakeOff:
		return d.transport.TakeOff()
	case command.ActionLand:
		return d.transport.Land()
	case command.ActionHover:
		return d.transport.Hover()
	case command.ActionRotateCW, command.ActionRotateCCW:
		return d.transport.Rotate(cmd.Action, d.cfg.RotateDegrees)
	case command.ActionFlip:
		return d.transport.Flip(cmd.Flip)
	case command.ActionMoveForward, command.ActionMoveBack, command.ActionMoveLeft,
		command.ActionMoveRight, command.ActionMoveUp, command.ActionMoveDown:
		return d.transport.Move(cmd.Action, d.cfg.MoveDistanceCM)
	default:
		return fmt.Errorf("action %s has no transport mapping", cmd.Action)
	}
}

// BeginQuery records the outstanding vision query id after a successful
// vision dispatch.
func (d *Dispatcher) BeginQuery(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outstanding = id
}

// EndQuery clears the outstanding query when the response id matches.
// Returns false for stale responses, which the caller drops.
func (d *Dispatcher) EndQuery(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outstanding != id || id == "" {
		return false
	}
	d.outstanding = ""
	return true
}

// CancelQuery drops any outstanding query, e.g. on shutdown.
func (d *Dispatcher) CancelQuery() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outstanding = ""
}

// SafetyHover reissues a standing hover, paced by the hover interval so an
// idle airborne vehicle is steadied without flooding the link. Cooldowns do
// not apply.
func (d *Dispatcher) SafetyHover(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return ErrShuttingDown
	}
	if now.Sub(d.lastHover) < d.cfg.HoverInterval {
		return nil
	}
	if err := d.transport.Hover(); err != nil {
		return &TransportError{Op: "hover", Cause: err}
	}
	d.lastHover = now
	d.current = command.New(command.ActionHover, command.SourceSafety, now)
	return nil
}

// SafetyLand issues the final land, bypassing cooldowns and retrying on
// transport failure up to the configured budget. Idempotent when already
// landed. The retry loop runs without the mutex: observer snapshots must not
// stall behind the backoff.
func (d *Dispatcher) SafetyLand(now time.Time) error {
	if !d.status.Airborne() {
		log.Debug("safety land skipped, already on the ground")
		return nil
	}

	var err error
	for attempt := 1; attempt <= d.cfg.LandRetries; attempt++ {
		if err = d.transport.Land(); err == nil {
			d.mu.Lock()
			d.current = command.New(command.ActionLand, command.SourceSafety, now)
			d.mu.Unlock()
			log.Info("safety land dispatched", "attempt", attempt)
			return nil
		}
		log.Warn("safety land attempt failed",
			"attempt", attempt, "error", err)
		if attempt < d.cfg.LandRetries {
			time.Sleep(d.cfg.LandRetryDelay)
		}
	}
	return &TransportError{Op: "land", Cause: err}
}

// MarkShutdown makes the dispatcher terminal. Every later Dispatch returns
// ErrShuttingDown.
func (d *Dispatcher) MarkShutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdown = true
}

// Snapshot returns the dispatcher state for the dashboard.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{
		Current:      d.current,
		Outstanding:  d.outstanding,
		ShuttingDown: d.shutdown,
	}
}
