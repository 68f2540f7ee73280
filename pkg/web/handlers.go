package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// handleStatus returns the engine snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.Status == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "engine not wired",
		})
	}
	return c.JSON(s.Status())
}

// handleGetLogs returns the log ring.
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

type selectModeRequest struct {
	Mode string `json:"mode"`
}

// handleSelectMode requests an explicit mode change.
func (s *Server) handleSelectMode(c *fiber.Ctx) error {
	var req selectModeRequest
	if err := c.BodyParser(&req); err != nil || req.Mode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"mode\": \"idle|manual|gesture|voice|vision\"}",
		})
	}
	if s.OnSelectMode == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "engine not wired"})
	}
	if err := s.OnSelectMode(req.Mode); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"mode": req.Mode})
}

type commandRequest struct {
	Action string `json:"action"`
}

// handleCommand injects one manual action into the event queue. Whether it
// executes is still the engine's call: admission and cooldowns apply.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req commandRequest
	if err := c.BodyParser(&req); err != nil || req.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"action\": \"takeoff|land|...\"}",
		})
	}
	if s.OnManual == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "engine not wired"})
	}
	if err := s.OnManual(req.Action); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"action": req.Action, "queued": true})
}

type queryRequest struct {
	Question string `json:"question"`
}

// handleQuery injects one vision query and returns the id its answer will
// carry on the status stream.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil || req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"question\": \"...\"}",
		})
	}
	if s.OnQuery == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "engine not wired"})
	}
	id, err := s.OnQuery(req.Question)
	if err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"id": id})
}

type voiceRequest struct {
	Phrase string `json:"phrase"`
}

// handleVoice injects one transcribed phrase, bypassing the recognizer.
// Bench use only; the phrase still goes through the matcher and cooldowns.
func (s *Server) handleVoice(c *fiber.Ctx) error {
	var req voiceRequest
	if err := c.BodyParser(&req); err != nil || req.Phrase == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"phrase\": \"...\"}",
		})
	}
	if s.OnVoice == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "engine not wired"})
	}
	if err := s.OnVoice(req.Phrase); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"queued": true})
}

// handleStatusWS streams engine snapshots. The current snapshot is sent on
// connect so the dashboard renders immediately.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := newHubClient(uuid.New().String(), s.statusHub, conn)
	if s.Status != nil {
		conn.WriteJSON(s.Status())
	}
	client.serve()
}

// handleLogsWS streams log entries, replaying the ring on connect.
func (s *Server) handleLogsWS(conn *websocket.Conn) {
	s.logsMu.RLock()
	backlog := make([]LogEntry, len(s.logs))
	copy(backlog, s.logs)
	s.logsMu.RUnlock()

	client := newHubClient(uuid.New().String(), s.logHub, conn)
	for _, entry := range backlog {
		conn.WriteJSON(entry)
	}
	client.serve()
}
