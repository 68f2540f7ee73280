// Package debounce filters noisy recognizer output into discrete committed
// commands. Gesture observations arrive as a frame stream and must hold a
// label for a configured number of consecutive frames; voice observations
// arrive as complete utterances and resolve through the synonym matcher.
// Commits are edge-triggered: once a label fires, it must drop out and be
// re-established before it can fire again.
package debounce

import (
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/pkg/command"
	"github.com/teslashibe/go-tello/pkg/voice"
)

const (
	defaultHoldFrames  = 5
	defaultConfidence  = 0.90
	defaultMinInterval = 500 * time.Millisecond

	// recentLabels is the size of the observation ring kept for the dashboard.
	recentLabels = 8
)

// NoDetection is the sentinel label classifiers emit when no hand is found.
const NoDetection = "none"

// gestureActions is the fixed label vocabulary of the gesture classifier.
var gestureActions = map[string]command.VehicleAction{
	"forward":  command.ActionMoveForward,
	"backward": command.ActionMoveBack,
	"up":       command.ActionMoveUp,
	"down":     command.ActionMoveDown,
	"left":     command.ActionMoveLeft,
	"right":    command.ActionMoveRight,
	"flip":     command.ActionFlip,
	"land":     command.ActionLand,
	"stop":     command.ActionHover,
}

// Config holds the tuning knobs for both modalities. Zero values fall back
// to the defaults tuned on the original airframe.
type Config struct {
	// HoldFrames is the number of consecutive identical gesture
	// observations required before a commit.
	HoldFrames int

	// Confidence is the minimum classifier confidence; observations below
	// it reset the window.
	Confidence float64

	// GestureMinInterval is the minimum time between gesture commits.
	GestureMinInterval time.Duration

	// VoiceMinInterval is the minimum time between voice commits.
	VoiceMinInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.HoldFrames <= 0 {
		c.HoldFrames = defaultHoldFrames
	}
	if c.Confidence <= 0 {
		c.Confidence = defaultConfidence
	}
	if c.GestureMinInterval <= 0 {
		c.GestureMinInterval = defaultMinInterval
	}
	if c.VoiceMinInterval <= 0 {
		c.VoiceMinInterval = defaultMinInterval
	}
	return c
}

// Window is a read-only snapshot of one modality's debounce state.
type Window struct {
	Tracked    string
	Count      int
	StartedAt  time.Time
	LastCommit time.Time
	Recent     []string
}

// Debouncer owns one window per modality. Observe calls happen on the engine
// goroutine only; the mutex exists for dashboard snapshots.
type Debouncer struct {
	mu  sync.RWMutex
	cfg Config

	matcher *voice.Matcher

	// gesture window
	tracked     string
	count       int
	startedAt   time.Time
	fired       bool
	lastGesture time.Time
	ring        [recentLabels]string
	ringN       int

	// voice window
	lastVoice time.Time
}

// New creates a Debouncer. A nil matcher disables the voice path.
func New(cfg Config, matcher *voice.Matcher) *Debouncer {
	return &Debouncer{cfg: cfg.withDefaults(), matcher: matcher}
}

// ObserveGesture feeds one classifier observation into the gesture window.
// ok is true only when this observation commits a command.
func (d *Debouncer) ObserveGesture(label string, confidence float64, now time.Time) (command.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	label = strings.ToLower(strings.TrimSpace(label))
	d.pushRecent(label)

	// No detection or low confidence breaks the streak.
	if label == "" || label == NoDetection || confidence < d.cfg.Confidence {
		d.resetWindow()
		return command.Command{}, false
	}

	if label != d.tracked {
		d.tracked = label
		d.count = 1
		d.startedAt = now
		d.fired = false
		return command.Command{}, false
	}

	if d.fired {
		// Held past the commit. Nothing fires until the label drops out
		// and is re-established.
		return command.Command{}, false
	}

	d.count++
	if d.count < d.cfg.HoldFrames {
		return command.Command{}, false
	}

	action, known := gestureActions[label]
	if !known {
		log.Debug("gesture label not in vocabulary", "label", label)
		d.resetWindow()
		return command.Command{}, false
	}

	if now.Sub(d.lastGesture) < d.cfg.GestureMinInterval {
		// The streak survives; the commit fires on the first frame past
		// the interval instead of forcing a re-hold.
		log.Debug("gesture commit deferred inside min interval", "label", label)
		return command.Command{}, false
	}

	d.fired = true
	d.count = 0
	d.lastGesture = now
	if action == command.ActionFlip {
		return command.NewFlip(command.FlipForward, command.SourceGesture, now), true
	}
	return command.New(action, command.SourceGesture, now), true
}

// ObserveVoice feeds one complete utterance through the synonym matcher.
// ok is true only when the phrase commits a command.
func (d *Debouncer) ObserveVoice(phrase string, now time.Time) (command.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.matcher == nil {
		return command.Command{}, false
	}

	b, ok := d.matcher.Match(phrase)
	if !ok {
		log.Debug("no command matched utterance", "phrase", phrase)
		return command.Command{}, false
	}

	if now.Sub(d.lastVoice) < d.cfg.VoiceMinInterval {
		log.Debug("voice commit inside min interval", "phrase", phrase)
		return command.Command{}, false
	}

	d.lastVoice = now
	if b.Action == command.ActionFlip {
		return command.NewFlip(b.Flip, command.SourceVoice, now), true
	}
	return command.New(b.Action, command.SourceVoice, now), true
}

// Reset clears both windows. Called on mode changes so a half-held gesture
// from the previous mode cannot fire under the new one.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetWindow()
	d.ringN = 0
}

// Snapshot returns the gesture window state for the dashboard.
func (d *Debouncer) Snapshot() Window {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := d.ringN
	if n > recentLabels {
		n = recentLabels
	}
	recent := make([]string, 0, n)
	for i := 0; i < n; i++ {
		recent = append(recent, d.ring[(d.ringN-n+i)%recentLabels])
	}
	return Window{
		Tracked:    d.tracked,
		Count:      d.count,
		StartedAt:  d.startedAt,
		LastCommit: d.lastGesture,
		Recent:     recent,
	}
}

func (d *Debouncer) resetWindow() {
	d.tracked = ""
	d.count = 0
	d.startedAt = time.Time{}
	d.fired = false
}

func (d *Debouncer) pushRecent(label string) {
	d.ring[d.ringN%recentLabels] = label
	d.ringN++
}
