package persona

import (
	"math/rand"
	"strings"
	"sync"
)

// InputClass is the classification of one inbound capture.
type InputClass string

const (
	ClassSilence InputClass = "silence"
	ClassKeyword InputClass = "keywordMatch"
	ClassGeneric InputClass = "generic"
)

// fraudKeywords are the tactic terms that route a turn to the persona's
// keyword-triggered pool.
var fraudKeywords = []string{
	"gift card",
	"wire transfer",
	"western union",
	"moneygram",
	"bitcoin",
	"crypto",
	"social security",
	"warrant",
	"arrest",
	"irs",
	"refund",
	"remote access",
	"anydesk",
	"teamviewer",
	"verification code",
}

// Engine selects persona utterances. The random source is owned by the
// engine and seeded at construction so tests can pin selection behavior.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewEngine(seed int64) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Classify maps raw capture input to an input class. Empty speech and empty
// digits mean the gather window elapsed with nothing said.
func Classify(speech, digits string) InputClass {
	if strings.TrimSpace(speech) == "" && strings.TrimSpace(digits) == "" {
		return ClassSilence
	}
	lower := strings.ToLower(speech)
	for _, kw := range fraudKeywords {
		if strings.Contains(lower, kw) {
			return ClassKeyword
		}
	}
	return ClassGeneric
}

// Greeting returns an opening line for a new call.
func (e *Engine) Greeting(p *Persona) string {
	return e.pick(p.Greetings)
}

// Respond produces the next utterance for one turn and the updated
// counters. Pool routing, in order: the irritated pool once the mood has
// escalated, then a probabilistic derail, then the pool matching the input
// class. In the respond phase a follow-up question is appended so the
// caller always has something to answer.
func (e *Engine) Respond(p *Persona, c Counters, class InputClass) (string, Counters) {
	if c.Mood == "" {
		c.Mood = MoodCalm
	}

	if class != ClassSilence {
		c.Interruptions++
	}
	if c.Mood == MoodCalm && c.Interruptions >= p.Escalation.IrritationThreshold {
		c.Mood = MoodIrritated
	}

	var line string
	switch {
	case c.Mood == MoodIrritated:
		c.Irritation++
		line = e.pick(p.IrritatedLines)
	case e.roll() < p.Escalation.DerailChance:
		c.Forgetfulness++
		line = e.pick(p.DerailedLines)
	case class == ClassSilence:
		line = e.pick(p.SilenceLines)
	case class == ClassKeyword:
		line = e.pick(p.KeywordResponses)
	default:
		line = e.pick(p.Responses)
	}

	if follow := e.pick(p.FollowUps); follow != "" {
		line = line + " " + follow
	}
	return line, c
}

// Filler returns a persona-appropriate line for the defensive fallback
// path, guaranteed non-empty.
func (e *Engine) Filler(p *Persona) string {
	if line := e.pick(p.SilenceLines); line != "" {
		return line
	}
	return "Hello? I'm still here."
}

// DelaySeconds returns a uniform delay in [min, max] seconds, for the
// answer pause that makes pickup feel human.
func (e *Engine) DelaySeconds(min, max int) int {
	if max <= min {
		return min
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return min + e.rng.Intn(max-min+1)
}

// Choose picks one entry uniformly from an arbitrary pool.
func (e *Engine) Choose(pool []string) string {
	return e.pick(pool)
}

// AssignRandom picks a persona uniformly from the catalog.
func (e *Engine) AssignRandom(c *Catalog) *Persona {
	if c.Len() == 0 {
		return nil
	}
	e.mu.Lock()
	idx := e.rng.Intn(c.Len())
	e.mu.Unlock()
	return &c.personas[idx]
}

func (e *Engine) pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	e.mu.Lock()
	idx := e.rng.Intn(len(pool))
	e.mu.Unlock()
	return pool[idx]
}

func (e *Engine) roll() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}
