package web

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-tello/internal/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds one inbound client frame. Clients only send
	// pongs, so this stays small.
	maxMessageSize = 4 * 1024
)

// hub fans one stream of JSON payloads out to its websocket clients using
// the channel-based register/broadcast pattern. Slow clients are dropped,
// never allowed to block the broadcaster.
type hub struct {
	name       string
	clients    map[*hubClient]bool
	broadcast  chan []byte
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
}

func newHub(name string) *hub {
	return &hub{
		name:       name,
		clients:    make(map[*hubClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		done:       make(chan struct{}),
	}
}

// run owns the client set. Call in a goroutine; stop ends it.
func (h *hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Debug("dashboard client connected", "hub", h.name, "id", client.id, "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case payload := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					close(client.send)
					delete(h.clients, client)
					log.Debug("dropped slow dashboard client", "hub", h.name, "id", client.id)
				}
			}

		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

func (h *hub) stop() {
	close(h.done)
}

// publishJSON encodes v and broadcasts it. A full broadcast channel drops
// the payload; the dashboard always catches up from the next one.
func (h *hub) publishJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn("dashboard payload encode failed", "hub", h.name, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// hubClient is one websocket connection attached to a hub.
type hubClient struct {
	id   string
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

func newHubClient(id string, h *hub, conn *websocket.Conn) *hubClient {
	client := &hubClient{id: id, hub: h, conn: conn, send: make(chan []byte, 64)}
	h.register <- client
	return client
}

// serve pumps the connection until it closes. Call from the websocket
// handler; it blocks for the connection's lifetime.
func (c *hubClient) serve() {
	go c.writePump()
	c.readPump()
}

// readPump only consumes pongs and detects disconnection; the dashboard
// never sends data frames on these sockets.
func (c *hubClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the connection.
func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
