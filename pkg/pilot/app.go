package pilot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-tello/internal/config"
	"github.com/teslashibe/go-tello/internal/health"
	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/internal/observe"
	"github.com/teslashibe/go-tello/pkg/bridge"
	"github.com/teslashibe/go-tello/pkg/command"
	"github.com/teslashibe/go-tello/pkg/debounce"
	"github.com/teslashibe/go-tello/pkg/dispatch"
	"github.com/teslashibe/go-tello/pkg/events"
	"github.com/teslashibe/go-tello/pkg/mode"
	"github.com/teslashibe/go-tello/pkg/safety"
	"github.com/teslashibe/go-tello/pkg/tello"
	"github.com/teslashibe/go-tello/pkg/vision"
	"github.com/teslashibe/go-tello/pkg/vlm"
	"github.com/teslashibe/go-tello/pkg/voice"
	"github.com/teslashibe/go-tello/pkg/web"
)

// App assembles the pilot from configuration and supervises its subsystems:
// the aircraft driver, the recognizer bridge, the vision-language client,
// the dashboard, the ops endpoint, and the engine in the middle.
type App struct {
	cfg *config.Config

	engine     *Engine
	supervisor *safety.Supervisor
	driver     *tello.Driver
	vlmClient  vlm.Provider
	frames     *vision.FrameCache
	visionMgr  *vision.Manager
	bridgeCli  *bridge.Client
	webServer  *web.Server
	opsServer  *http.Server

	// enqueueCtx outlives request contexts so producer callbacks can hand
	// events to the engine without inheriting a short deadline.
	enqueueCtx    context.Context
	cancelEnqueue context.CancelFunc

	shutdownOnce sync.Once
}

// New builds the application. Nothing connects until Run.
func New(cfg *config.Config, metrics *observe.Metrics) (*App, error) {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	a := &App{cfg: cfg}
	a.enqueueCtx, a.cancelEnqueue = context.WithCancel(context.Background())

	a.supervisor = safety.New(safety.Config{
		BatteryLow:      cfg.Safety.BatteryLow,
		BatteryCritical: cfg.Safety.BatteryCritical,
	})

	a.driver = tello.New(tello.Config{
		Addr:           cfg.Vehicle.Addr,
		StateAddr:      cfg.Vehicle.StateAddr,
		CommandTimeout: cfg.Vehicle.CommandTimeout.Std(),
	})

	dispatcher := dispatch.New(dispatch.Config{
		MoveDistanceCM:   cfg.Dispatch.MoveDistanceCM,
		RotateDegrees:    cfg.Dispatch.RotateDegrees,
		MovementCooldown: cfg.Dispatch.MovementCooldown.Std(),
		VisionCooldown:   cfg.Dispatch.VisionCooldown.Std(),
		HoverInterval:    cfg.Dispatch.HoverInterval.Std(),
		LandRetries:      cfg.Dispatch.LandRetries,
		LandRetryDelay:   cfg.Dispatch.LandRetryDelay.Std(),
	}, a.driver, a.supervisor)

	matcher := voice.New()
	debouncer := debounce.New(debounce.Config{
		HoldFrames:         cfg.Debounce.HoldFrames,
		Confidence:         cfg.Debounce.Confidence,
		GestureMinInterval: cfg.Debounce.GestureMinInterval.Std(),
		VoiceMinInterval:   cfg.Debounce.VoiceMinInterval.Std(),
	}, matcher)

	vlmClient, err := vlm.NewClient(
		vlm.WithBaseURL(cfg.VLM.BaseURL),
		vlm.WithAPIKey(cfg.VLM.APIKey),
		vlm.WithModel(cfg.VLM.Model),
		vlm.WithMaxTokens(cfg.VLM.MaxTokens),
		vlm.WithTimeout(cfg.VLM.Timeout.Std()),
		vlm.WithLogger(log.L()),
	)
	if err != nil {
		return nil, fmt.Errorf("build vlm client: %w", err)
	}
	a.vlmClient = vlmClient

	a.frames = vision.NewFrameCache()
	a.visionMgr = vision.NewManager(a.vlmClient, a.frames, cfg.VLM.Timeout.Std(), func(ev events.Event) {
		a.engine.Enqueue(a.enqueueCtx, ev)
	})

	modes := mode.NewController()
	a.engine = NewEngine(EngineConfig{
		QueueSize:         cfg.Engine.QueueSize,
		KeepaliveInterval: cfg.Dispatch.HoverInterval.Std(),
		TelemetryTimeout:  cfg.Safety.TelemetryTimeout.Std(),
		CheckInterval:     cfg.Safety.CheckInterval.Std(),
	}, modes, debouncer, dispatcher, a.supervisor, a.visionMgr, a.driver, metrics)

	if cfg.Engine.DefaultMode != "" {
		if m, err := mode.Parse(cfg.Engine.DefaultMode); err == nil {
			a.engine.SelectMode(m)
		}
	}

	a.bridgeCli = bridge.New(bridge.Config{URL: cfg.Bridge.URL})
	a.bridgeCli.OnGesture = func(label string, confidence float64) {
		a.engine.Enqueue(a.enqueueCtx, events.NewGesture(label, confidence))
	}
	a.bridgeCli.OnVoice = func(phrase string) {
		a.engine.Enqueue(a.enqueueCtx, events.NewVoice(phrase))
	}
	a.bridgeCli.OnFrame = a.frames.Put

	a.webServer = web.NewServer(web.Config{
		Addr:      cfg.Web.Addr,
		StaticDir: cfg.Web.StaticDir,
	})
	a.webServer.Status = func() any { return a.engine.Snapshot() }
	a.webServer.OnSelectMode = a.SelectMode
	a.webServer.OnManual = a.InjectManual
	a.webServer.OnQuery = a.Query
	a.webServer.OnVoice = a.InjectVoice

	a.engine.OnChange = func(s Snapshot) { a.webServer.PublishStatus(s) }
	a.engine.OnAnswer = func(id, query, answer string) {
		a.webServer.AddLog("vision", query+" -> "+answer)
	}

	a.opsServer = a.buildOpsServer()
	return a, nil
}

// buildOpsServer mounts health probes and the Prometheus scrape endpoint.
func (a *App) buildOpsServer() *http.Server {
	mux := http.NewServeMux()
	health.New(
		health.Checker{Name: "vehicle", Check: func(ctx context.Context) error {
			if !a.supervisor.Vehicle().TelemetryFresh {
				return errors.New("telemetry stale")
			}
			return nil
		}},
		health.Checker{Name: "engine", Check: func(ctx context.Context) error {
			if a.engine.ShuttingDown() {
				return errors.New("shutting down")
			}
			return nil
		}},
		health.Checker{Name: "vlm", Check: a.vlmClient.Health},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              a.cfg.Ops.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Engine exposes the engine for the console and tests.
func (a *App) Engine() *Engine {
	return a.engine
}

// SelectMode handles an explicit mode selection by name.
func (a *App) SelectMode(name string) error {
	m, err := mode.Parse(name)
	if err != nil {
		return err
	}
	a.engine.SelectMode(m)
	return nil
}

// InjectManual queues one manual action by name.
func (a *App) InjectManual(action string) error {
	act, err := command.ParseAction(action)
	if err != nil {
		return err
	}
	a.engine.Enqueue(a.enqueueCtx, events.NewManual(act))
	return nil
}

// InjectVoice queues one phrase as if the recognizer transcribed it.
func (a *App) InjectVoice(phrase string) error {
	if phrase == "" {
		return errors.New("empty phrase")
	}
	a.engine.Enqueue(a.enqueueCtx, events.NewVoice(phrase))
	return nil
}

// Query queues one vision question and returns the id its answer will carry.
func (a *App) Query(question string) (string, error) {
	if question == "" {
		return "", errors.New("empty question")
	}
	id := uuid.New().String()
	a.engine.Enqueue(a.enqueueCtx, events.NewVisionQuery(id, question))
	return id, nil
}

// RequestShutdown queues the terminal shutdown event.
func (a *App) RequestShutdown() {
	a.engine.Enqueue(a.enqueueCtx, events.NewShutdown())
}

// Run connects the aircraft and supervises every subsystem until the engine
// ends the session or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.driver.OnState(func(s tello.State) {
		a.engine.Enqueue(a.enqueueCtx, events.NewTelemetry(events.Telemetry{
			Battery:  s.Battery,
			Height:   s.Height,
			Airborne: s.Airborne,
		}))
	})

	if err := a.driver.Connect(ctx); err != nil {
		return fmt.Errorf("connect aircraft: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		err := a.engine.Run(gctx)
		// The engine exiting ends the session for everyone else.
		cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := a.bridgeCli.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.webServer.Shutdown()
	})
	g.Go(func() error {
		return a.webServer.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
		defer stop()
		return a.opsServer.Shutdown(shutCtx)
	})
	g.Go(func() error {
		if err := a.opsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := g.Wait()
	a.Shutdown()
	return err
}

// Shutdown closes everything the App opened, in reverse order of creation.
// Safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.cancelEnqueue()
		a.visionMgr.CancelOutstanding()
		a.bridgeCli.Close()
		a.vlmClient.Close()
		a.driver.Close()
		log.Info("pilot stopped")
	})
}
