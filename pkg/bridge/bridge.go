// Package bridge connects to the external recognizer process over a
// websocket. The recognizer owns the camera, the hand-pose classifier, and
// the speech transcriber; this client only receives their symbolic output.
// Text frames carry JSON observation envelopes, binary frames carry the
// latest camera JPEG for the vision channel.
package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-tello/internal/log"
)

// maxMessageBytes bounds one inbound frame; camera JPEGs stay well under it.
const maxMessageBytes = 4 << 20

// Config holds the bridge endpoint and retry pacing.
type Config struct {
	// URL is the recognizer websocket endpoint.
	URL string

	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration

	// ReconnectMin and ReconnectMax bound the retry backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	return c
}

// envelope is one recognizer observation on the wire.
type envelope struct {
	Type       string  `json:"type"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Phrase     string  `json:"phrase,omitempty"`
}

// Client maintains the recognizer connection and fans observations out to
// the registered callbacks. Set the callbacks before Run.
type Client struct {
	cfg Config

	// OnGesture receives one classifier observation per camera frame.
	OnGesture func(label string, confidence float64)

	// OnVoice receives one complete transcribed utterance.
	OnVoice func(phrase string)

	// OnFrame receives the latest camera JPEG.
	OnFrame func(jpeg []byte)

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// New creates a bridge client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Run dials the recognizer and pumps observations until ctx ends,
// reconnecting with doubling backoff on any failure.
func (c *Client) Run(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	delay := c.cfg.ReconnectMin

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			log.Warn("recognizer bridge dial failed",
				"url", c.cfg.URL, "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if delay *= 2; delay > c.cfg.ReconnectMax {
				delay = c.cfg.ReconnectMax
			}
			continue
		}

		log.Info("recognizer bridge connected", "url", c.cfg.URL)
		delay = c.cfg.ReconnectMin
		conn.SetReadLimit(maxMessageBytes)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()

		// Unblock the read loop when the context ends mid-connection.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		c.readLoop(conn)
		close(done)
		conn.Close()

		c.mu.Lock()
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}
		log.Warn("recognizer bridge disconnected, reconnecting")
	}
}

// Close ends the connection and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if c.OnFrame != nil {
				c.OnFrame(data)
			}

		case websocket.TextMessage:
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Debug("bad bridge envelope", "error", err)
				continue
			}
			c.handle(env)
		}
	}
}

func (c *Client) handle(env envelope) {
	switch env.Type {
	case "gesture":
		if c.OnGesture != nil {
			c.OnGesture(env.Label, env.Confidence)
		}
	case "voice":
		if c.OnVoice != nil {
			c.OnVoice(env.Phrase)
		}
	default:
		log.Debug("unknown bridge envelope type", "type", env.Type)
	}
}
