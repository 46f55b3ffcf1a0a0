// Package callflow turns provider webhooks into declarative instruction
// responses. Each handler reads the caller's conversation state, asks the
// persona engine for the next utterance, and answers with the instruction
// list that keeps the call cycling through capture windows.
package callflow

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/quietwire/baitline/internal/bus"
	"github.com/quietwire/baitline/internal/convo"
	"github.com/quietwire/baitline/internal/dispatch"
	"github.com/quietwire/baitline/internal/persona"
	"github.com/quietwire/baitline/internal/store"
	"github.com/quietwire/baitline/internal/telephony"
)

// Conversation phases, recorded on the state for observability.
const (
	PhaseGreeting   = "greeting"
	PhaseListening  = "listening"
	PhaseResponding = "responding"
	PhaseFallback   = "fallback"
)

const (
	gatherTimeoutSeconds = 8

	// safeLine is spoken when a webhook arrives without a usable caller
	// identity; the exchange still gets a valid instruction response.
	safeLine = "Hello? I think something's wrong with my phone. Can you hear me?"
)

// ControllerConfig wires the controller's collaborators.
type ControllerConfig struct {
	Catalog     *persona.Catalog
	Engine      *persona.Engine
	Convos      convo.Store
	Records     *store.Store
	Synth       telephony.Synthesizer
	Transcriber telephony.Transcriber
	Bus         *bus.Bus

	// CallbackBaseURL is the externally reachable prefix for this
	// process's webhook endpoints.
	CallbackBaseURL string

	// Callback numbers handed out when a caller asks how to reach the
	// persona again, keyed by the scam category's pool class.
	BusinessCallbacks []string
	PersonalCallbacks []string
}

type Controller struct {
	cfg ControllerConfig
	now func() time.Time
}

func NewController(cfg ControllerConfig) *Controller {
	return &Controller{cfg: cfg, now: time.Now}
}

// SetNow injects a clock for tests.
func (c *Controller) SetNow(now func() time.Time) {
	c.now = now
}

// Answer handles the call-answered webhook: it assigns (or recalls) the
// caller's persona, waits a human-feeling beat, speaks the greeting, and
// opens the first capture window.
func (c *Controller) Answer(ctx context.Context, callID, caller string) *telephony.Response {
	key := dispatch.NormalizePhone(caller)
	if key == "" {
		log.Printf("[callflow] answer webhook for call %s has no caller identity", callID)
		return c.safeResponse(ctx)
	}

	name := c.personaFor(key)
	callCount := 1
	if a, err := c.cfg.Records.RecordContact(key, name, c.now()); err != nil {
		log.Printf("[callflow] record contact for %s: %v", key, err)
	} else {
		name = a.Persona
		callCount = a.TotalCalls
	}

	st, returning := c.cfg.Convos.Ensure(key, func() (string, int) {
		return name, callCount
	})

	p, ok := c.cfg.Catalog.Get(st.Persona)
	if !ok {
		log.Printf("[callflow] unknown persona %q for %s", st.Persona, key)
		return c.safeResponse(ctx)
	}

	// A returning caller recognizes the persona; new calls sit in the
	// pickup delay a little longer.
	delay := c.cfg.Engine.DelaySeconds(3, 7)
	if returning {
		delay = c.cfg.Engine.DelaySeconds(1, 2)
	}

	greeting := c.cfg.Engine.Greeting(p)
	c.cfg.Convos.Upsert(key, func(st *convo.State) {
		st.Phase = PhaseListening
		st.AppendTurn(convo.SpeakerPersona, greeting, c.now())
	})

	c.publish(bus.CallEvent{Kind: bus.EventAnswered, CallID: callID, Number: key})
	log.Printf("[callflow] call %s answered by %s as %s (call #%d, returning=%v)",
		callID, key, st.Persona, callCount, returning)

	resp := &telephony.Response{}
	resp.Pause(delay)
	c.speak(ctx, resp, p.VoiceProfile, greeting)
	return resp.Gather(c.gatherSpec())
}

// Capture handles one turn: classify what the caller said, route through
// the persona's pools, persist both sides of the exchange, and re-open
// the capture window.
func (c *Controller) Capture(ctx context.Context, callID, caller, speech, digits string) *telephony.Response {
	key := dispatch.NormalizePhone(caller)
	if key == "" {
		log.Printf("[callflow] capture webhook for call %s has no caller identity", callID)
		return c.safeResponse(ctx)
	}

	st, ok := c.cfg.Convos.Get(key)
	if !ok {
		// State was swept or the process restarted mid-call; rebuild it
		// from the durable assignment so the persona stays consistent.
		name := c.personaFor(key)
		callCount := 1
		if a, err := c.cfg.Records.GetAssignment(key); err == nil && a != nil {
			name = a.Persona
			callCount = a.TotalCalls
		}
		st, _ = c.cfg.Convos.Ensure(key, func() (string, int) { return name, callCount })
		log.Printf("[callflow] resynthesized conversation state for %s as %s", key, name)
	}

	p, ok := c.cfg.Catalog.Get(st.Persona)
	if !ok {
		return c.safeResponse(ctx)
	}

	class := persona.Classify(speech, digits)
	line, counters := c.cfg.Engine.Respond(p, st.Counters, class)
	phase := PhaseListening
	if line == "" {
		line = c.cfg.Engine.Filler(p)
		phase = PhaseFallback
	}
	if num := c.callbackNumber(key, speech); num != "" {
		line = line + " If we get cut off you can reach me at " + num + "."
	}

	heard := strings.TrimSpace(speech)
	if heard == "" && strings.TrimSpace(digits) == "" {
		heard = convo.SilenceMarker
	} else if heard == "" {
		heard = digits
	}
	c.cfg.Convos.Upsert(key, func(st *convo.State) {
		st.Counters = counters
		st.Phase = phase
		st.AppendTurn(convo.SpeakerCaller, heard, c.now())
		st.AppendTurn(convo.SpeakerPersona, line, c.now())
	})
	log.Printf("[callflow] call %s turn %d: class=%s mood=%s", callID, st.TurnCount, class, counters.Mood)

	resp := &telephony.Response{}
	c.speak(ctx, resp, p.VoiceProfile, line)
	return resp.Gather(c.gatherSpec())
}

// Status handles call lifecycle notifications. Terminal statuses are
// translated into bus events for the dispatcher's bookkeeping, and a
// completed call's conversation state is released immediately rather than
// waiting for the TTL sweep.
func (c *Controller) Status(_ context.Context, callID, caller, status string, durationSec int) *telephony.Response {
	key := dispatch.NormalizePhone(caller)

	switch status {
	case "completed":
		var transcript string
		if st, ok := c.cfg.Convos.Get(key); ok {
			transcript = transcriptOf(st)
			c.cfg.Convos.Delete(key)
			log.Printf("[callflow] call %s completed after %d turns (%ds)", callID, st.TurnCount, durationSec)
		}
		c.publish(bus.CallEvent{
			Kind:        bus.EventCompleted,
			CallID:      callID,
			Number:      key,
			DurationSec: durationSec,
			Transcript:  transcript,
		})
	case "failed", "busy", "no-answer":
		if key != "" {
			c.cfg.Convos.Delete(key)
		}
		c.publish(bus.CallEvent{
			Kind:        bus.EventFailed,
			CallID:      callID,
			Number:      key,
			DurationSec: durationSec,
		})
	default:
		log.Printf("[callflow] call %s status %s", callID, status)
	}
	return &telephony.Response{}
}

// Recording hands a finished fallback recording to the transcriber; the
// text comes back later on the transcript webhook.
func (c *Controller) Recording(ctx context.Context, callID, recordingURL string) {
	if recordingURL == "" {
		return
	}
	if err := c.cfg.Transcriber.Submit(ctx, callID, recordingURL); err != nil {
		log.Printf("[callflow] transcription submit for %s: %v", callID, err)
	}
}

// Transcription receives the asynchronous transcript of a recording.
func (c *Controller) Transcription(_ context.Context, callID, transcript string) {
	log.Printf("[callflow] transcript for %s: %d chars", callID, len(transcript))
}

// publish puts a lifecycle event on the bus and logs a drop when the
// buffer is full, since the dispatcher then never sees this event.
func (c *Controller) publish(ev bus.CallEvent) {
	if !c.cfg.Bus.Publish(ev) {
		log.Printf("[callflow] event bus full, dropped %s event for call %s", ev.Kind, ev.CallID)
	}
}

// personaFor returns the durable persona for a number, assigning a random
// one on first contact.
func (c *Controller) personaFor(key string) string {
	if a, err := c.cfg.Records.GetAssignment(key); err == nil && a != nil {
		return a.Persona
	}
	if p := c.cfg.Engine.AssignRandom(c.cfg.Catalog); p != nil {
		return p.Name
	}
	return ""
}

// callbackNumber hands out a callback number when the caller asks for one,
// picked from the pool matching the call's scam category class.
func (c *Controller) callbackNumber(key, speech string) string {
	lower := strings.ToLower(speech)
	if !strings.Contains(lower, "call") ||
		(!strings.Contains(lower, "back") && !strings.Contains(lower, "number")) {
		return ""
	}

	category := c.cfg.Records.CategoryFor(key)
	pool := c.cfg.PersonalCallbacks
	if persona.CallbackClass(category) == persona.PoolBusiness {
		pool = c.cfg.BusinessCallbacks
	}
	return c.cfg.Engine.Choose(pool)
}

// speak renders one utterance, preferring synthesized audio and degrading
// to provider-side speech when synthesis fails.
func (c *Controller) speak(ctx context.Context, resp *telephony.Response, voice, text string) {
	audio, err := c.cfg.Synth.Synthesize(ctx, voice, text)
	if err != nil {
		log.Printf("[callflow] synthesis failed, falling back to say: %v", err)
		resp.Say(voice, text)
		return
	}
	resp.Play(audio)
}

func (c *Controller) gatherSpec() telephony.GatherSpec {
	return telephony.GatherSpec{
		TimeoutSeconds: gatherTimeoutSeconds,
		ActionURL:      c.cfg.CallbackBaseURL + "/webhook/capture",
		FallbackRecord: true,
	}
}

// safeResponse keeps a malformed exchange alive without touching any
// state: a neutral line and a fresh capture window.
func (c *Controller) safeResponse(ctx context.Context) *telephony.Response {
	resp := &telephony.Response{}
	c.speak(ctx, resp, "", safeLine)
	return resp.Gather(c.gatherSpec())
}

// transcriptOf flattens the caller's side of the turn history for outcome
// classification.
func transcriptOf(st *convo.State) string {
	var parts []string
	for _, turn := range st.Turns {
		if turn.Speaker == convo.SpeakerCaller && turn.Utterance != convo.SilenceMarker {
			parts = append(parts, turn.Utterance)
		}
	}
	return strings.Join(parts, " ")
}
