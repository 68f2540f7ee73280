// Package command defines the vehicle command vocabulary shared by the
// arbitration engine, its input adapters, and the vehicle transport.
package command

import (
	"fmt"
	"time"
)

// VehicleAction identifies a discrete directive the vehicle can execute.
type VehicleAction int

const (
	ActionNone VehicleAction = iota
	ActionTakeOff
	ActionLand
	ActionHover
	ActionMoveForward
	ActionMoveBack
	ActionMoveLeft
	ActionMoveRight
	ActionMoveUp
	ActionMoveDown
	ActionRotateCW
	ActionRotateCCW
	ActionFlip
	ActionQueryVision
)

// String returns the action name used in logs and the dashboard.
func (a VehicleAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionTakeOff:
		return "takeoff"
	case ActionLand:
		return "land"
	case ActionHover:
		return "hover"
	case ActionMoveForward:
		return "move_forward"
	case ActionMoveBack:
		return "move_back"
	case ActionMoveLeft:
		return "move_left"
	case ActionMoveRight:
		return "move_right"
	case ActionMoveUp:
		return "move_up"
	case ActionMoveDown:
		return "move_down"
	case ActionRotateCW:
		return "rotate_cw"
	case ActionRotateCCW:
		return "rotate_ccw"
	case ActionFlip:
		return "flip"
	case ActionQueryVision:
		return "query_vision"
	default:
		return "unknown"
	}
}

// ParseAction maps an action name, as produced by String, back to its
// constant. Used by the dashboard API and the console.
func ParseAction(name string) (VehicleAction, error) {
	for a := ActionTakeOff; a <= ActionQueryVision; a++ {
		if a.String() == name {
			return a, nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action %q", name)
}

// Valid reports whether a is a known action constant.
func (a VehicleAction) Valid() bool {
	return a > ActionNone && a <= ActionQueryVision
}

// IsMovement reports whether the action steers the vehicle. TakeOff, Land,
// Hover, and vision queries are not movement in this sense.
func (a VehicleAction) IsMovement() bool {
	switch a {
	case ActionMoveForward, ActionMoveBack, ActionMoveLeft, ActionMoveRight,
		ActionMoveUp, ActionMoveDown, ActionRotateCW, ActionRotateCCW, ActionFlip:
		return true
	default:
		return false
	}
}

// IsSafety reports whether the action is admitted as a safety override
// regardless of the active control mode.
func (a VehicleAction) IsSafety() bool {
	return a == ActionTakeOff || a == ActionLand
}

// FlipDirection selects the axis for a flip maneuver.
type FlipDirection int

const (
	FlipForward FlipDirection = iota
	FlipBack
	FlipLeft
	FlipRight
)

// String returns the direction name for logs.
func (d FlipDirection) String() string {
	switch d {
	case FlipForward:
		return "forward"
	case FlipBack:
		return "back"
	case FlipLeft:
		return "left"
	case FlipRight:
		return "right"
	default:
		return "unknown"
	}
}

// Letter returns the single-letter direction code used on the wire.
func (d FlipDirection) Letter() string {
	switch d {
	case FlipForward:
		return "f"
	case FlipBack:
		return "b"
	case FlipLeft:
		return "l"
	case FlipRight:
		return "r"
	default:
		return "f"
	}
}

// Source identifies the input modality that produced a command.
type Source int

const (
	SourceManual Source = iota
	SourceGesture
	SourceVoice
	SourceVision
	SourceSafety
)

// String returns the modality name used in logs and metrics.
func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceGesture:
		return "gesture"
	case SourceVoice:
		return "voice"
	case SourceVision:
		return "vision"
	case SourceSafety:
		return "safety"
	default:
		return "unknown"
	}
}

// Command is a committed directive bound for the dispatcher. Immutable once
// created.
type Command struct {
	Action VehicleAction
	Flip   FlipDirection
	Source Source
	At     time.Time
}

// New creates a committed command stamped with the given time.
func New(action VehicleAction, src Source, at time.Time) Command {
	return Command{Action: action, Source: src, At: at}
}

// NewFlip creates a committed flip command with an explicit direction.
func NewFlip(d FlipDirection, src Source, at time.Time) Command {
	return Command{Action: ActionFlip, Flip: d, Source: src, At: at}
}
