// Package tello drives a Ryze Tello over its UDP text protocol: commands and
// acknowledgments on one socket, a push telemetry stream on another. The
// driver satisfies the dispatcher's transport interface and feeds telemetry
// to a registered callback.
package tello

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/pkg/command"
	"github.com/teslashibe/go-tello/pkg/dispatch"
)

// Driver must satisfy the dispatcher's transport contract.
var _ dispatch.Transport = (*Driver)(nil)

const (
	// DefaultAddr is the aircraft command endpoint on its own AP.
	DefaultAddr = "192.168.10.1:8889"

	// DefaultStateAddr is the local listen address for the state stream.
	DefaultStateAddr = ":8890"

	defaultCommandTimeout = 7 * time.Second

	minDistanceCM = 20
	maxDistanceCM = 500
	minDegrees    = 1
	maxDegrees    = 360
)

var (
	// ErrNotConnected means Connect has not succeeded yet.
	ErrNotConnected = errors.New("tello: not connected")

	// ErrCommandTimeout means the aircraft did not acknowledge in time.
	ErrCommandTimeout = errors.New("tello: command timed out")
)

// Config holds the driver endpoints and timing.
type Config struct {
	// Addr is the aircraft command endpoint.
	Addr string

	// StateAddr is the local address the state stream is pushed to.
	StateAddr string

	// CommandTimeout bounds one command acknowledgment round-trip.
	CommandTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.StateAddr == "" {
		c.StateAddr = DefaultStateAddr
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	return c
}

// Driver is a connection to one aircraft. Command round-trips are serialized;
// the state stream runs on its own goroutine.
type Driver struct {
	cfg Config

	conn      *net.UDPConn
	stateConn net.PacketConn

	cmdMu sync.Mutex
	resp  chan string

	stateMu  sync.RWMutex
	last     State
	airborne bool
	onState  func(State)

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates an unconnected driver.
func New(cfg Config) *Driver {
	return &Driver{
		cfg:    cfg.withDefaults(),
		resp:   make(chan string, 8),
		closed: make(chan struct{}),
	}
}

// OnState registers the telemetry callback. Must be called before Connect.
func (d *Driver) OnState(fn func(State)) {
	d.onState = fn
}

// Connect opens both sockets, enters SDK mode, and primes the battery
// reading. The state stream starts flowing once the aircraft has seen the
// first command from this host.
func (d *Driver) Connect(ctx context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp", d.cfg.Addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", d.cfg.Addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", d.cfg.Addr, err)
	}
	d.conn = conn

	stateConn, err := net.ListenPacket("udp", d.cfg.StateAddr)
	if err != nil {
		conn.Close()
		return fmt.Errorf("listen %s: %w", d.cfg.StateAddr, err)
	}
	d.stateConn = stateConn

	go d.readResponses()
	go d.readState()

	// "command" switches the firmware into SDK mode. Retry a couple of
	// times: the first datagram after power-on is often dropped.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if ctx.Err() != nil {
			d.Close()
			return ctx.Err()
		}
		if _, lastErr = d.roundTrip("command"); lastErr == nil {
			break
		}
		log.Warn("sdk mode entry failed, retrying", "attempt", attempt+1, "error", lastErr)
	}
	if lastErr != nil {
		d.Close()
		return fmt.Errorf("enter sdk mode: %w", lastErr)
	}

	if err := d.Keepalive(); err != nil {
		log.Warn("initial battery query failed", "error", err)
	}
	log.Info("aircraft connected", "addr", d.cfg.Addr, "battery", d.Last().Battery)
	return nil
}

// Close shuts both sockets down.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		if d.conn != nil {
			d.conn.Close()
		}
		if d.stateConn != nil {
			d.stateConn.Close()
		}
	})
	return nil
}

// Last returns the most recent telemetry sample.
func (d *Driver) Last() State {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.last
}

// TakeOff starts the motors and climbs to hover height.
func (d *Driver) TakeOff() error {
	if _, err := d.roundTrip("takeoff"); err != nil {
		return err
	}
	d.setAirborne(true)
	return nil
}

// Land descends and stops the motors.
func (d *Driver) Land() error {
	if _, err := d.roundTrip("land"); err != nil {
		return err
	}
	d.setAirborne(false)
	return nil
}

// Hover zeroes all stick axes. The firmware sends no acknowledgment for rc
// frames, so only the send can fail.
func (d *Driver) Hover() error {
	return d.send("rc 0 0 0 0")
}

// Move translates the aircraft by cm in the direction encoded by the action.
func (d *Driver) Move(action command.VehicleAction, cm int) error {
	var dir string
	switch action {
	case command.ActionMoveForward:
		dir = "forward"
	case command.ActionMoveBack:
		dir = "back"
	case command.ActionMoveLeft:
		dir = "left"
	case command.ActionMoveRight:
		dir = "right"
	case command.ActionMoveUp:
		dir = "up"
	case command.ActionMoveDown:
		dir = "down"
	default:
		return fmt.Errorf("tello: %s is not a move", action)
	}
	_, err := d.roundTrip(fmt.Sprintf("%s %d", dir, clamp(cm, minDistanceCM, maxDistanceCM)))
	return err
}

// Rotate yaws the aircraft clockwise or counter-clockwise by degrees.
func (d *Driver) Rotate(action command.VehicleAction, degrees int) error {
	var dir string
	switch action {
	case command.ActionRotateCW:
		dir = "cw"
	case command.ActionRotateCCW:
		dir = "ccw"
	default:
		return fmt.Errorf("tello: %s is not a rotation", action)
	}
	_, err := d.roundTrip(fmt.Sprintf("%s %d", dir, clamp(degrees, minDegrees, maxDegrees)))
	return err
}

// Flip performs a flip in the given direction.
func (d *Driver) Flip(dir command.FlipDirection) error {
	_, err := d.roundTrip("flip " + dir.Letter())
	return err
}

// Keepalive queries the battery to keep the firmware's inactivity watchdog
// from auto-landing, and folds the reading into the last sample.
func (d *Driver) Keepalive() error {
	resp, err := d.roundTrip("battery?")
	if err != nil {
		return err
	}
	bat, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return fmt.Errorf("tello: bad battery response %q", resp)
	}
	d.stateMu.Lock()
	d.last.Battery = bat
	d.last.At = time.Now()
	d.stateMu.Unlock()
	return nil
}

// roundTrip sends one command and waits for its acknowledgment. Round-trips
// are serialized; stale responses left by a timeout are drained first.
func (d *Driver) roundTrip(cmd string) (string, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	if d.conn == nil {
		return "", ErrNotConnected
	}

	for {
		select {
		case stale := <-d.resp:
			log.Debug("dropping stale response", "response", stale)
			continue
		default:
		}
		break
	}

	if _, err := d.conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("send %q: %w", cmd, err)
	}

	select {
	case resp := <-d.resp:
		resp = strings.TrimSpace(resp)
		if strings.HasPrefix(strings.ToLower(resp), "error") {
			return "", fmt.Errorf("tello: %q rejected: %s", cmd, resp)
		}
		return resp, nil
	case <-time.After(d.cfg.CommandTimeout):
		return "", fmt.Errorf("%w: %s", ErrCommandTimeout, cmd)
	case <-d.closed:
		return "", ErrNotConnected
	}
}

// send writes a fire-and-forget command (rc frames).
func (d *Driver) send(cmd string) error {
	if d.conn == nil {
		return ErrNotConnected
	}
	if _, err := d.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

func (d *Driver) readResponses() {
	buf := make([]byte, 1024)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			select {
			case <-d.closed:
			default:
				log.Warn("command socket read failed", "error", err)
			}
			return
		}
		select {
		case d.resp <- string(buf[:n]):
		default:
			log.Debug("unexpected response discarded", "response", string(buf[:n]))
		}
	}
}

func (d *Driver) readState() {
	buf := make([]byte, 2048)
	for {
		n, _, err := d.stateConn.ReadFrom(buf)
		if err != nil {
			select {
			case <-d.closed:
			default:
				log.Warn("state socket read failed", "error", err)
			}
			return
		}

		s := parseState(string(buf[:n]), time.Now())

		d.stateMu.Lock()
		if s.Height > airborneHeightCM {
			d.airborne = true
		}
		s.Airborne = d.airborne
		d.last = s
		fn := d.onState
		d.stateMu.Unlock()

		if fn != nil {
			fn(s)
		}
	}
}

func (d *Driver) setAirborne(v bool) {
	d.stateMu.Lock()
	d.airborne = v
	d.last.Airborne = v
	d.stateMu.Unlock()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
