// Package web serves the pilot dashboard: a read-mostly view of the
// arbitration engine plus the control endpoints that inject mode selections,
// manual commands, and vision queries into its event queue. The dashboard
// renders; it never decides.
package web

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-tello/internal/log"
)

const logRingSize = 500

// LogEntry is one line in the dashboard log ring.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, command, drop, safety, vision, error
	Message string `json:"message"`
}

// Config holds the server address and static asset location.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// StaticDir holds the dashboard assets.
	StaticDir string
}

// Server is the dashboard HTTP and websocket server. Set the callback fields
// before Start; they bridge the API into the engine.
type Server struct {
	cfg Config
	app *fiber.App

	// Status returns the current engine snapshot for /api/status and the
	// status websocket.
	Status func() any

	// OnSelectMode handles an explicit mode selection request.
	OnSelectMode func(name string) error

	// OnManual injects a manual action by name.
	OnManual func(action string) error

	// OnQuery injects a vision query and returns its id.
	OnQuery func(question string) (string, error)

	// OnVoice injects a transcribed phrase, used from the bench page.
	OnVoice func(phrase string) error

	logsMu sync.RWMutex
	logs   []LogEntry

	statusHub *hub
	logHub    *hub
}

// NewServer creates the dashboard server and its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:       cfg,
		logs:      make([]LogEntry, 0, logRingSize),
		statusHub: newHub("status"),
		logHub:    newHub("logs"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Tello Pilot",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/mode", s.handleSelectMode)
	api.Post("/command", s.handleCommand)
	api.Post("/query", s.handleQuery)
	api.Post("/voice", s.handleVoice)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// Start runs the hubs and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	go s.statusHub.run()
	go s.logHub.run()
	log.Info("dashboard listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops the server and its hubs.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.statusHub.stop()
	s.logHub.stop()
	return err
}

// PublishStatus pushes a fresh engine snapshot to every status client.
func (s *Server) PublishStatus(snapshot any) {
	s.statusHub.publishJSON(snapshot)
}

// AddLog appends to the log ring and pushes the entry to every log client.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > logRingSize {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.publishJSON(entry)
}
