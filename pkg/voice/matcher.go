// Package voice maps transcribed utterances to vehicle actions. Matching is
// three-stage: exact phrase lookup, longest-synonym containment for phrases
// embedded in longer utterances, and a Double Metaphone + Jaro-Winkler
// fallback for near-miss transcriptions of single commands.
package voice

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/teslashibe/go-tello/internal/log"
	"github.com/teslashibe/go-tello/pkg/command"
)

const (
	defaultPhoneticThreshold = 0.84
	defaultFuzzyThreshold    = 0.92
)

// Binding is the action a phrase resolves to.
type Binding struct {
	Action command.VehicleAction
	Flip   command.FlipDirection
}

type entry struct {
	phrase  string
	binding Binding
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched synonym to be accepted. Default: 0.84.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate is found. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher resolves phrases against the synonym table. Read-only after
// construction, safe for concurrent use.
type Matcher struct {
	exact   map[string]Binding
	entries []entry

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Matcher over the default synonym table.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		exact:             make(map[string]Binding),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}

	add := func(b Binding, phrases ...string) {
		for _, p := range phrases {
			m.exact[p] = b
			m.entries = append(m.entries, entry{phrase: p, binding: b})
		}
	}

	add(Binding{Action: command.ActionTakeOff},
		"takeoff", "take off", "start", "begin flight", "arise", "launch")
	add(Binding{Action: command.ActionLand},
		"land", "stop", "descend fully", "ground")
	add(Binding{Action: command.ActionMoveForward},
		"move forward", "go forward", "fly forward", "forward")
	add(Binding{Action: command.ActionMoveBack},
		"move backward", "go back", "fly backward", "backward", "back")
	add(Binding{Action: command.ActionRotateCCW},
		"turn left", "rotate left")
	add(Binding{Action: command.ActionRotateCW},
		"turn right", "rotate right")
	add(Binding{Action: command.ActionMoveLeft},
		"move left", "go left", "fly left", "strafe left", "left")
	add(Binding{Action: command.ActionMoveRight},
		"move right", "go right", "fly right", "strafe right", "right")
	add(Binding{Action: command.ActionMoveUp},
		"move up", "ascend", "fly up", "up")
	add(Binding{Action: command.ActionMoveDown},
		"move down", "descend", "fly down", "down")
	add(Binding{Action: command.ActionHover},
		"hover", "stay", "hold position", "stop moving")
	add(Binding{Action: command.ActionFlip, Flip: command.FlipForward},
		"flip forward", "do a front flip", "flip")
	add(Binding{Action: command.ActionFlip, Flip: command.FlipBack},
		"flip backward", "do a back flip")
	add(Binding{Action: command.ActionFlip, Flip: command.FlipLeft},
		"flip left", "do a left flip")
	add(Binding{Action: command.ActionFlip, Flip: command.FlipRight},
		"flip right", "do a right flip")

	// Longest synonym wins containment so "stop moving" resolves to hover
	// before "stop" can resolve to land.
	sort.SliceStable(m.entries, func(i, j int) bool {
		return len(m.entries[i].phrase) > len(m.entries[j].phrase)
	})

	return m
}

// Match resolves a transcribed phrase to an action. ok is false when nothing
// in the table matches; the caller decides how to report the miss.
func (m *Matcher) Match(phrase string) (Binding, bool) {
	text := normalize(phrase)
	if text == "" {
		return Binding{}, false
	}

	if b, ok := m.exact[text]; ok {
		return b, true
	}

	// Containment: the utterance embeds a known synonym as whole words
	// ("please land now" resolves, "island" does not).
	padded := " " + text + " "
	for _, e := range m.entries {
		if strings.Contains(padded, " "+e.phrase+" ") {
			return e.binding, true
		}
	}

	return m.phonetic(text)
}

// phonetic runs the two-stage fallback: Double Metaphone candidate filtering
// ranked by Jaro-Winkler, then a stricter pure-similarity pass.
func (m *Matcher) phonetic(text string) (Binding, bool) {
	inputCodes := metaphoneCodes(strings.Fields(text))

	var (
		best         entry
		bestScore    float64
		bestPhonetic bool
	)
	for _, e := range m.entries {
		score := matchr.JaroWinkler(text, e.phrase, false)
		if codesOverlap(inputCodes, metaphoneCodes(strings.Fields(e.phrase))) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = e, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = e, score
		}
	}

	if best.phrase == "" {
		return Binding{}, false
	}
	log.Debug("voice phrase corrected phonetically",
		"heard", text, "matched", best.phrase, "score", bestScore)
	return best.binding, true
}

func normalize(phrase string) string {
	text := strings.ToLower(strings.TrimSpace(phrase))
	text = strings.Trim(text, ".,!?")
	return strings.Join(strings.Fields(text), " ")
}

func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
