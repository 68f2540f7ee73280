// Package pilot wires the arbitration engine together: one event queue, one
// consumer goroutine, and the debouncer, mode controller, dispatcher, and
// safety supervisor it drives. Producers enqueue immutable events from any
// goroutine; every piece of arbitration state mutates only on the consumer
// side.
package pilot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/internal/observe"
	"github.com/teslashibe/go-tello/pkg/command"
	"github.com/teslashibe/go-tello/pkg/debounce"
	"github.com/teslashibe/go-tello/pkg/dispatch"
	"github.com/teslashibe/go-tello/pkg/events"
	"github.com/teslashibe/go-tello/pkg/mode"
	"github.com/teslashibe/go-tello/pkg/safety"
)

// QueryRunner launches one asynchronous vision query. The answer comes back
// as a vision result event; CancelOutstanding aborts the in-flight one.
type QueryRunner interface {
	Begin(ctx context.Context, id, query string)
	CancelOutstanding()
}

// Keepaliver is the transport's inactivity ping, used while the vehicle sits
// on the ground so the firmware watchdog does not auto-land a future flight.
type Keepaliver interface {
	Keepalive() error
}

// EngineConfig tunes the event loop.
type EngineConfig struct {
	// QueueSize caps the event queue.
	QueueSize int

	// KeepaliveInterval paces the ground keepalive ping and the standing
	// hover reissue while idle or degraded.
	KeepaliveInterval time.Duration

	// TelemetryTimeout is how stale telemetry may get before the link is
	// declared lost.
	TelemetryTimeout time.Duration

	// CheckInterval is the watchdog tick.
	CheckInterval time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 2 * time.Second
	}
	if c.TelemetryTimeout <= 0 {
		c.TelemetryTimeout = 5 * time.Second
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Second
	}
	return c
}

// Answer is the most recent vision query result, kept for the dashboard.
type Answer struct {
	ID     string `json:"id"`
	Query  string `json:"query"`
	Text   string `json:"text"`
	Failed bool   `json:"failed"`
}

// Snapshot is the engine state exposed to observers.
type Snapshot struct {
	Mode         string              `json:"mode"`
	Safety       string              `json:"safety"`
	Vehicle      safety.VehicleState `json:"vehicle"`
	Current      string              `json:"current_command"`
	Source       string              `json:"source"`
	Outstanding  string              `json:"outstanding_query"`
	LastAnswer   Answer              `json:"last_answer"`
	QueueDepth   int                 `json:"queue_depth"`
	Dropped      uint64              `json:"dropped_events"`
	ShuttingDown bool                `json:"shutting_down"`
}

// Engine is the single consumer of the symbolic event stream.
type Engine struct {
	cfg EngineConfig

	queue      chan events.Event
	modes      *mode.Controller
	debouncer  *debounce.Debouncer
	dispatcher *dispatch.Dispatcher
	supervisor *safety.Supervisor
	queries    QueryRunner
	keepalive  Keepaliver
	metrics    *observe.Metrics

	// OnChange receives a snapshot after every processed event. Optional;
	// called on the consumer goroutine, must not block.
	OnChange func(Snapshot)

	// OnAnswer receives each matched vision answer. Optional.
	OnAnswer func(id, query, answer string)

	dropped  atomic.Uint64
	terminal atomic.Bool

	// consumer-side state
	queryStart time.Time
	queryText  string
	lastPing   time.Time

	// lastAnswer is written on the consumer goroutine and read by dashboard
	// handlers through Snapshot.
	ansMu      sync.RWMutex
	lastAnswer Answer
}

// NewEngine assembles the loop. queries and keepalive may be nil in tests.
func NewEngine(
	cfg EngineConfig,
	modes *mode.Controller,
	debouncer *debounce.Debouncer,
	dispatcher *dispatch.Dispatcher,
	supervisor *safety.Supervisor,
	queries QueryRunner,
	keepalive Keepaliver,
	metrics *observe.Metrics,
) *Engine {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Engine{
		cfg:        cfg,
		queue:      make(chan events.Event, cfg.QueueSize),
		modes:      modes,
		debouncer:  debouncer,
		dispatcher: dispatcher,
		supervisor: supervisor,
		queries:    queries,
		keepalive:  keepalive,
		metrics:    metrics,
	}
}

// Enqueue hands one event to the consumer. Critical events (shutdown,
// telemetry loss) block until queued; anything else is dropped when the
// queue is full, because a stale movement intent must not execute late.
func (e *Engine) Enqueue(ctx context.Context, ev events.Event) {
	if e.terminal.Load() {
		return
	}
	e.metrics.Events.Add(ctx, 1, eventAttr("kind", ev.Kind.String()))

	if ev.Critical() {
		select {
		case e.queue <- ev:
			e.metrics.QueueDepth.Add(ctx, 1)
		case <-ctx.Done():
		}
		return
	}

	select {
	case e.queue <- ev:
		e.metrics.QueueDepth.Add(ctx, 1)
	default:
		e.dropped.Add(1)
		e.metrics.RecordDrop(ctx, "queue_full")
		log.Warn("event queue full, dropping", "kind", ev.Kind.String())
	}
}

// SelectMode applies an explicit user mode selection and clears the gesture
// window so a half-held gesture cannot fire under the new mode.
func (e *Engine) SelectMode(m mode.Mode) bool {
	if !e.modes.Select(m) {
		return false
	}
	e.debouncer.Reset()
	return true
}

// Mode returns the selected control mode.
func (e *Engine) Mode() mode.Mode {
	return e.modes.Selected()
}

// ShuttingDown reports whether the session is terminal.
func (e *Engine) ShuttingDown() bool {
	return e.terminal.Load()
}

// Snapshot captures the engine state for the dashboard.
func (e *Engine) Snapshot() Snapshot {
	ds := e.dispatcher.Snapshot()
	return Snapshot{
		Mode:         e.modes.Selected().String(),
		Safety:       e.supervisor.State().String(),
		Vehicle:      e.supervisor.Vehicle(),
		Current:      ds.Current.Action.String(),
		Source:       ds.Current.Source.String(),
		Outstanding:  ds.Outstanding,
		LastAnswer:   e.answer(),
		QueueDepth:   len(e.queue),
		Dropped:      e.dropped.Load(),
		ShuttingDown: ds.ShuttingDown,
	}
}

// Run consumes events until the session ends. It returns nil after an
// orderly shutdown and the context error when cancelled from outside; both
// paths land the vehicle first.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown(ctx, "context cancelled")
			return ctx.Err()

		case ev := <-e.queue:
			e.metrics.QueueDepth.Add(ctx, -1)
			e.handle(ctx, ev)
			e.notify()
			if e.terminal.Load() {
				return nil
			}

		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

// handle processes one event to completion. Nothing else runs until it
// returns, so per-event work stays strictly ordered.
func (e *Engine) handle(ctx context.Context, ev events.Event) {
	now := ev.At
	if now.IsZero() {
		now = time.Now()
	}

	switch ev.Kind {
	case events.KindShutdown:
		e.shutdown(ctx, "shutdown requested")
		return

	case events.KindTelemetry:
		e.applyDirective(ctx, e.supervisor.ObserveTelemetry(ev.Telemetry, now), now)
		return

	case events.KindTelemetryLost:
		e.supervisor.TelemetryStale(now)
		if e.supervisor.Airborne() {
			e.safetyHover(ctx, now)
		}
		return

	case events.KindVisionResult:
		e.handleVisionResult(ctx, ev)
		return
	}

	// Command-producing kinds go through admission under the effective mode.
	degraded := e.supervisor.Degraded()
	verdict := e.modes.Admit(ev, degraded)
	if !verdict.Allow {
		e.metrics.RecordDrop(ctx, "not_admitted")
		log.Debug("event dropped",
			"kind", ev.Kind.String(), "mode", e.modes.Selected().String(), "reason", verdict.Reason)
		if degraded && e.supervisor.Airborne() {
			// Degraded sessions hold position instead of executing intents.
			e.safetyHover(ctx, now)
		}
		return
	}

	switch ev.Kind {
	case events.KindGesture:
		if cmd, ok := e.debouncer.ObserveGesture(ev.Label, ev.Confidence, now); ok {
			e.commit(ctx, cmd, now)
		}

	case events.KindVoice:
		if cmd, ok := e.debouncer.ObserveVoice(ev.Phrase, now); ok {
			e.commit(ctx, cmd, now)
		}

	case events.KindManual:
		cmd := command.Command{Action: ev.Action, Flip: ev.Flip, Source: command.SourceManual, At: now}
		e.dispatch(ctx, cmd, now)

	case events.KindVisionQuery:
		e.beginQuery(ctx, ev, now)
	}
}

// commit records a debounced commit, then dispatches it.
func (e *Engine) commit(ctx context.Context, cmd command.Command, now time.Time) {
	e.metrics.Commits.Add(ctx, 1, eventAttr("modality", cmd.Source.String()))
	e.dispatch(ctx, cmd, now)
}

// dispatch forwards one committed command and classifies the outcome.
// Rejections are final: nothing is queued or replayed.
func (e *Engine) dispatch(ctx context.Context, cmd command.Command, now time.Time) {
	err := e.dispatcher.Dispatch(cmd, now)
	switch {
	case err == nil:
		e.metrics.RecordDispatch(ctx, cmd.Action.String(), "ok")

	case errors.Is(err, dispatch.ErrRateLimited):
		e.metrics.RecordDispatch(ctx, cmd.Action.String(), "rate_limited")
		log.Info("command rate limited",
			"action", cmd.Action.String(), "source", cmd.Source.String())

	case errors.Is(err, dispatch.ErrInvalidTransition):
		e.metrics.RecordDispatch(ctx, cmd.Action.String(), "invalid_transition")
		log.Info("command rejected, invalid flight state",
			"action", cmd.Action.String(), "airborne", e.supervisor.Airborne())

	case errors.Is(err, dispatch.ErrBusy):
		e.metrics.RecordDispatch(ctx, cmd.Action.String(), "busy")
		log.Info("vision query rejected, one already outstanding")

	case errors.Is(err, dispatch.ErrShuttingDown):
		e.metrics.RecordDispatch(ctx, cmd.Action.String(), "shutting_down")

	default:
		e.metrics.RecordDispatch(ctx, cmd.Action.String(), "transport_error")
		log.Error("transport failed",
			"action", cmd.Action.String(), "error", err)
	}
}

// beginQuery runs the vision channel gating, then launches the backend call.
func (e *Engine) beginQuery(ctx context.Context, ev events.Event, now time.Time) {
	cmd := command.New(command.ActionQueryVision, command.SourceVision, now)
	if err := e.dispatcher.Dispatch(cmd, now); err != nil {
		switch {
		case errors.Is(err, dispatch.ErrBusy):
			e.metrics.RecordDispatch(ctx, cmd.Action.String(), "busy")
			log.Info("vision query rejected, one already outstanding", "id", ev.QueryID)
		case errors.Is(err, dispatch.ErrRateLimited):
			e.metrics.RecordDispatch(ctx, cmd.Action.String(), "rate_limited")
			log.Info("vision query rate limited", "id", ev.QueryID)
		default:
			e.metrics.RecordDispatch(ctx, cmd.Action.String(), "error")
			log.Warn("vision query rejected", "id", ev.QueryID, "error", err)
		}
		return
	}

	e.dispatcher.BeginQuery(ev.QueryID)
	e.queryStart = now
	e.queryText = ev.Query
	e.metrics.RecordDispatch(ctx, cmd.Action.String(), "ok")
	if e.queries != nil {
		e.queries.Begin(ctx, ev.QueryID, ev.Query)
	}
}

// handleVisionResult matches an asynchronous answer back by id. Results for
// ids no longer outstanding are stale (timed out or cancelled) and dropped;
// the vision cooldown stands either way.
func (e *Engine) handleVisionResult(ctx context.Context, ev events.Event) {
	if !e.dispatcher.EndQuery(ev.QueryID) {
		e.metrics.RecordDrop(ctx, "stale_vision_result")
		log.Debug("stale vision result dropped", "id", ev.QueryID)
		return
	}

	if !e.queryStart.IsZero() {
		e.metrics.VisionQueryDuration.Record(ctx, time.Since(e.queryStart).Seconds())
	}

	if ev.Err != nil {
		e.setAnswer(Answer{ID: ev.QueryID, Query: e.queryText, Failed: true})
		log.Warn("vision query failed", "id", ev.QueryID, "error", ev.Err)
		return
	}

	e.setAnswer(Answer{ID: ev.QueryID, Query: e.queryText, Text: ev.Answer})
	log.Info("vision query answered", "id", ev.QueryID)
	if e.OnAnswer != nil {
		e.OnAnswer(ev.QueryID, e.queryText, ev.Answer)
	}
}

// tick runs the telemetry watchdog and the keepalive path.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	v := e.supervisor.Vehicle()

	// Raise telemetry loss exactly once per stale episode.
	if v.TelemetryFresh && !v.LastTelemetry.IsZero() &&
		now.Sub(v.LastTelemetry) > e.cfg.TelemetryTimeout {
		log.Warn("telemetry timed out",
			"last", v.LastTelemetry, "timeout", e.cfg.TelemetryTimeout)
		e.handle(ctx, events.NewTelemetryLost())
		e.notify()
		return
	}

	if v.Airborne && (e.supervisor.Degraded() || e.modes.Selected() == mode.ModeIdle) {
		// Standing hover: steady an uncommanded airborne vehicle at a low
		// fixed rate instead of on every tick.
		e.safetyHover(ctx, now)
		return
	}

	if !v.Airborne && e.keepalive != nil && now.Sub(e.lastPing) >= e.cfg.KeepaliveInterval {
		e.lastPing = now
		if err := e.keepalive.Keepalive(); err != nil {
			log.Debug("keepalive ping failed", "error", err)
		}
	}
}

func (e *Engine) safetyHover(ctx context.Context, now time.Time) {
	if err := e.dispatcher.SafetyHover(now); err != nil && !errors.Is(err, dispatch.ErrShuttingDown) {
		e.metrics.RecordDispatch(ctx, command.ActionHover.String(), "transport_error")
		log.Error("standing hover failed", "error", err)
	}
}

// applyDirective executes what the supervisor asked for after a telemetry
// observation.
func (e *Engine) applyDirective(ctx context.Context, d safety.Directive, now time.Time) {
	switch d {
	case safety.DirectiveLand:
		if err := e.dispatcher.SafetyLand(now); err != nil {
			log.Error("automatic landing failed", "error", err)
			e.shutdown(ctx, "automatic landing failed")
		}
	case safety.DirectiveEmergency:
		e.shutdown(ctx, "battery critical")
	}
}

// shutdown is the single emergency terminus: cancel async work, land with
// the bounded retry budget, and make the dispatcher terminal. Runs at most
// once; later calls are no-ops.
func (e *Engine) shutdown(ctx context.Context, reason string) {
	if !e.supervisor.Escalate(reason) && e.terminal.Load() {
		return
	}
	e.terminal.Store(true)

	if e.queries != nil {
		e.queries.CancelOutstanding()
	}
	e.dispatcher.CancelQuery()

	if err := e.dispatcher.SafetyLand(time.Now()); err != nil {
		log.Error("emergency landing failed, giving up", "error", err)
	}
	e.dispatcher.MarkShutdown()
	e.metrics.RecordDispatch(ctx, command.ActionLand.String(), "emergency")
	log.Info("session ended", "reason", reason)
}

func (e *Engine) setAnswer(a Answer) {
	e.ansMu.Lock()
	e.lastAnswer = a
	e.ansMu.Unlock()
}

func (e *Engine) answer() Answer {
	e.ansMu.RLock()
	defer e.ansMu.RUnlock()
	return e.lastAnswer
}

func (e *Engine) notify() {
	if e.OnChange != nil {
		e.OnChange(e.Snapshot())
	}
}

func eventAttr(key, value string) metric.AddOption {
	return metric.WithAttributes(observe.Attr(key, value))
}
