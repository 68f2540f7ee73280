// Command tellopilot arbitrates manual, gesture, voice, and vision-query
// control of a Tello aircraft and serializes the winning commands onto its
// UDP link. Recognizers run out of process and feed the pilot over the
// bridge websocket.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-tello/internal/config"
	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/internal/observe"
	"github.com/teslashibe/go-tello/pkg/pilot"
	"github.com/teslashibe/go-tello/pkg/voice"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (empty: built-in defaults)")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tellopilot: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = config.LogLevel(*logLevel)
	}
	log.Init(string(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "tellopilot",
		ServiceVersion: version,
	})
	if err != nil {
		log.Error("metrics init failed", "error", err)
		return 1
	}
	defer otelShutdown(context.Background())

	app, err := pilot.New(cfg, observe.DefaultMetrics())
	if err != nil {
		log.Error("build failed", "error", err)
		return 1
	}
	defer app.Shutdown()

	log.Info("tellopilot starting",
		"version", version,
		"vehicle", cfg.Vehicle.Addr,
		"bridge", cfg.Bridge.URL,
		"dashboard", cfg.Web.Addr,
		"ops", cfg.Ops.Addr,
	)

	go console(app)

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("pilot failed", "error", err)
		return 1
	}
	return 0
}

// console is the line-oriented operator input: mode changes, vision
// questions, and bare command words routed through the voice matcher.
func console(app *pilot.App) {
	matcher := voice.New()
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		verb, rest, _ := strings.Cut(line, " ")
		switch verb {
		case "quit", "exit":
			app.RequestShutdown()
			return

		case "mode":
			if err := app.SelectMode(strings.TrimSpace(rest)); err != nil {
				fmt.Println(err)
			}

		case "ask":
			question := strings.TrimSpace(rest)
			if question == "" {
				fmt.Println("usage: ask <question about the current frame>")
				continue
			}
			id, err := app.Query(question)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println("query", id, "queued")

		case "status":
			s := app.Engine().Snapshot()
			fmt.Printf("mode=%s safety=%s battery=%d airborne=%v current=%s\n",
				s.Mode, s.Safety, s.Vehicle.Battery, s.Vehicle.Airborne, s.Current)

		default:
			b, ok := matcher.Match(line)
			if !ok {
				fmt.Printf("unrecognized: %q (try \"mode gesture\", \"ask ...\", \"takeoff\", \"quit\")\n", line)
				continue
			}
			if err := app.InjectManual(b.Action.String()); err != nil {
				fmt.Println(err)
			}
		}
	}
}
