// Package vision runs natural-language queries about the current camera
// frame. Queries execute asynchronously against the vision-language backend;
// the engine is never blocked, and each answer comes back as an event
// carrying the query id it belongs to.
package vision

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/pkg/events"
	"github.com/teslashibe/go-tello/pkg/vlm"
)

// ErrNoFrame means no camera frame has been cached yet.
var ErrNoFrame = errors.New("vision: no frame cached")

// FrameProvider supplies the JPEG frame a query is about.
type FrameProvider interface {
	Frame(ctx context.Context) ([]byte, error)
}

// FrameCache is a latest-frame-wins store fed by the camera stream. Older
// frames are overwritten, never queued.
type FrameCache struct {
	mu   sync.RWMutex
	jpeg []byte
	at   time.Time
}

// Verify FrameCache implements FrameProvider at compile time.
var _ FrameProvider = (*FrameCache)(nil)

// NewFrameCache creates an empty cache.
func NewFrameCache() *FrameCache {
	return &FrameCache{}
}

// Put replaces the cached frame.
func (c *FrameCache) Put(jpeg []byte) {
	if len(jpeg) == 0 {
		return
	}
	c.mu.Lock()
	c.jpeg = jpeg
	c.at = time.Now()
	c.mu.Unlock()
}

// Frame returns the most recent frame.
func (c *FrameCache) Frame(_ context.Context) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.jpeg) == 0 {
		return nil, ErrNoFrame
	}
	return c.jpeg, nil
}

// Age returns how old the cached frame is, for the dashboard.
func (c *FrameCache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.at.IsZero() {
		return 0
	}
	return time.Since(c.at)
}

// Manager launches queries and delivers their results back into the event
// stream. The one-query-at-a-time rule is enforced upstream by the
// dispatcher; the manager only executes.
type Manager struct {
	backend vlm.Provider
	frames  FrameProvider
	timeout time.Duration
	deliver func(events.Event)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewManager wires the backend, the frame source, and the result delivery
// callback. A non-positive timeout falls back to two minutes.
func NewManager(backend vlm.Provider, frames FrameProvider, timeout time.Duration, deliver func(events.Event)) *Manager {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Manager{
		backend: backend,
		frames:  frames,
		timeout: timeout,
		deliver: deliver,
	}
}

// Begin starts one query. It returns immediately; the answer, failure, or
// timeout arrives later as a result event tagged with id.
func (m *Manager) Begin(ctx context.Context, id, query string) {
	qctx, cancel := context.WithTimeout(ctx, m.timeout)

	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		defer cancel()

		frame, err := m.frames.Frame(qctx)
		if err != nil {
			m.deliver(events.NewVisionResult(id, "", err))
			return
		}

		log.Info("vision query started", "id", id, "bytes", len(frame))
		answer, err := m.backend.Ask(qctx, query, frame)
		if err != nil {
			m.deliver(events.NewVisionResult(id, "", err))
			return
		}
		m.deliver(events.NewVisionResult(id, answer.Text, nil))
	}()
}

// CancelOutstanding aborts the in-flight query, if any. Its result event
// still arrives (with a cancellation error) and is dropped by id matching.
func (m *Manager) CancelOutstanding() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
