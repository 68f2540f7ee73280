// Package events defines the symbolic event stream consumed by the
// arbitration engine. Producers construct events and enqueue them; events are
// immutable once created and timestamped at creation.
package events

import (
	"time"

	"github.com/teslashibe/go-tello/pkg/command"
)

// Kind tags the variant carried by an Event.
type Kind int

const (
	KindGesture Kind = iota
	KindVoice
	KindVisionQuery
	KindVisionResult
	KindManual
	KindTelemetry
	KindTelemetryLost
	KindShutdown
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindGesture:
		return "gesture"
	case KindVoice:
		return "voice"
	case KindVisionQuery:
		return "vision_query"
	case KindVisionResult:
		return "vision_result"
	case KindManual:
		return "manual"
	case KindTelemetry:
		return "telemetry"
	case KindTelemetryLost:
		return "telemetry_lost"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Telemetry is the vehicle state sample carried by a KindTelemetry event.
type Telemetry struct {
	Battery  int
	Height   int
	Airborne bool
}

// Event is one symbolic observation from an input modality or the vehicle
// link. Only the fields for the tagged Kind are meaningful.
type Event struct {
	Kind Kind
	At   time.Time

	// KindGesture
	Label      string
	Confidence float64

	// KindVoice
	Phrase string

	// KindVisionQuery / KindVisionResult
	QueryID string
	Query   string
	Answer  string
	Err     error

	// KindManual
	Action command.VehicleAction
	Flip   command.FlipDirection

	// KindTelemetry
	Telemetry Telemetry
}

// Critical reports whether the event must never be dropped on a full queue.
func (e Event) Critical() bool {
	return e.Kind == KindShutdown || e.Kind == KindTelemetryLost
}

// NewGesture wraps one classifier observation.
func NewGesture(label string, confidence float64) Event {
	return Event{Kind: KindGesture, At: time.Now(), Label: label, Confidence: confidence}
}

// NewVoice wraps one complete transcribed utterance.
func NewVoice(phrase string) Event {
	return Event{Kind: KindVoice, At: time.Now(), Phrase: phrase}
}

// NewVisionQuery wraps a natural-language question about the current frame.
func NewVisionQuery(id, query string) Event {
	return Event{Kind: KindVisionQuery, At: time.Now(), QueryID: id, Query: query}
}

// NewVisionResult wraps the asynchronous answer (or failure) to an earlier
// vision query, matched back by id.
func NewVisionResult(id, answer string, err error) Event {
	return Event{Kind: KindVisionResult, At: time.Now(), QueryID: id, Answer: answer, Err: err}
}

// NewManual wraps a direct user action from the keyboard or dashboard.
func NewManual(action command.VehicleAction) Event {
	return Event{Kind: KindManual, At: time.Now(), Action: action}
}

// NewManualFlip wraps a direct flip request with an explicit direction.
func NewManualFlip(d command.FlipDirection) Event {
	return Event{Kind: KindManual, At: time.Now(), Action: command.ActionFlip, Flip: d}
}

// NewTelemetry wraps one vehicle state sample.
func NewTelemetry(t Telemetry) Event {
	return Event{Kind: KindTelemetry, At: time.Now(), Telemetry: t}
}

// NewTelemetryLost signals that the vehicle link went stale.
func NewTelemetryLost() Event {
	return Event{Kind: KindTelemetryLost, At: time.Now()}
}

// NewShutdown requests an orderly end of the session.
func NewShutdown() Event {
	return Event{Kind: KindShutdown, At: time.Now()}
}
