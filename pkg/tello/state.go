package tello

import (
	"strconv"
	"strings"
	"time"
)

// State is one telemetry sample parsed from the aircraft state stream.
type State struct {
	Battery    int
	Height     int
	FlightTime int
	Airborne   bool
	At         time.Time
}

// airborneHeightCM is the height above which the aircraft is considered
// flying even if a takeoff acknowledgment was missed.
const airborneHeightCM = 15

// parseState decodes a key:value;... state packet. Unknown and malformed
// fields are skipped; the firmware mixes comma-separated values into some
// fields (mpry) and occasionally truncates packets.
func parseState(raw string, at time.Time) State {
	s := State{At: at}
	for _, field := range strings.Split(strings.TrimSpace(raw), ";") {
		k, v, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		switch k {
		case "bat":
			s.Battery = n
		case "h":
			s.Height = n
		case "time":
			s.FlightTime = n
		}
	}
	return s
}
