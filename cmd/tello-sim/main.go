// Command tello-sim emulates the Tello SDK endpoint so the pilot can be
// exercised on a bench with no aircraft: it acknowledges the text commands,
// runs a toy flight model, and pushes state packets at 10 Hz to whoever has
// sent it a command. The rc frames get no acknowledgment, matching the
// firmware.
//
// Run the pilot against it with TELLO_ADDR=127.0.0.1:8889.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/teslashibe/go-tello/internal/log"
)

const stateInterval = 100 * time.Millisecond

func main() {
	addr := flag.String("addr", ":8889", "UDP listen address for the command endpoint")
	statePort := flag.Int("state-port", 8890, "UDP port on the client host to push state packets to")
	battery := flag.Int("battery", 100, "initial battery percentage")
	drain := flag.Float64("drain", 0, "battery drain in percent per minute while airborne (0: no drain)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	log.Init(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		statePort: *statePort,
		drain:     *drain,
		battery:   float64(*battery),
	}

	conn, err := net.ListenPacket("udp", *addr)
	if err != nil {
		log.Error("listen failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("simulated aircraft ready", "addr", *addr, "battery", *battery)

	go sim.pushState(ctx, conn)
	go sim.serve(conn)

	<-ctx.Done()
}

// simulator is the toy flight model. One instance serves every client; the
// last commander receives the state stream, like the real single-AP
// aircraft.
type simulator struct {
	statePort int
	drain     float64

	mu         sync.Mutex
	battery    float64
	heightCM   int
	airborne   bool
	flightTime int
	client     net.Addr
	tookOffAt  time.Time
}

func (s *simulator) serve(conn net.PacketConn) {
	buf := make([]byte, 1024)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(string(buf[:n]))

		s.mu.Lock()
		s.client = from
		reply, ack := s.apply(cmd)
		s.mu.Unlock()

		log.Debug("command received", "from", from.String(), "command", cmd, "reply", reply)
		if ack {
			conn.WriteTo([]byte(reply), from)
		}
	}
}

// apply mutates the model for one command and returns the reply. ack is
// false for rc frames, which the firmware never acknowledges.
func (s *simulator) apply(cmd string) (reply string, ack bool) {
	verb, arg, _ := strings.Cut(cmd, " ")
	switch verb {
	case "command":
		return "ok", true

	case "takeoff":
		if s.airborne {
			return "error Not joystick", true
		}
		s.airborne = true
		s.heightCM = 100
		s.tookOffAt = time.Now()
		return "ok", true

	case "land", "emergency":
		s.airborne = false
		s.heightCM = 0
		return "ok", true

	case "up":
		s.heightCM += atoi(arg)
		return "ok", true
	case "down":
		if s.heightCM -= atoi(arg); s.heightCM < 20 {
			s.heightCM = 20
		}
		return "ok", true

	case "forward", "back", "left", "right", "cw", "ccw", "flip":
		if !s.airborne {
			return "error Motor stop", true
		}
		return "ok", true

	case "battery?":
		return fmt.Sprintf("%d", int(s.battery)), true

	case "rc":
		return "", false

	default:
		return "error Unknown command", true
	}
}

// pushState streams state packets to the last commander at 10 Hz.
func (s *simulator) pushState(ctx context.Context, conn net.PacketConn) {
	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.airborne {
			s.flightTime = int(time.Since(s.tookOffAt).Seconds())
			s.battery -= s.drain * stateInterval.Minutes()
			if s.battery < 0 {
				s.battery = 0
			}
		}
		client := s.client
		packet := fmt.Sprintf("bat:%d;h:%d;time:%d;", int(s.battery), s.heightCM, s.flightTime)
		s.mu.Unlock()

		if client == nil {
			continue
		}
		host, _, err := net.SplitHostPort(client.String())
		if err != nil {
			continue
		}
		dest, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprintf("%d", s.statePort)))
		if err != nil {
			continue
		}
		conn.WriteTo([]byte(packet), dest)
	}
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
