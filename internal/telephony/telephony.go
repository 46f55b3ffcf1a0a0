// Package telephony defines the contracts this process has with the
// external provider: outbound collaborators (call placement, speech
// synthesis, transcription, fraud reporting) and the declarative
// instruction format returned from every webhook. No provider wire format
// leaks past this package.
package telephony

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type PlaceCallRequest struct {
	To        string
	From      string
	AnswerURL string
	StatusURL string
	Record    bool
}

// Dialer places an outbound call and returns the provider's call
// identifier. The call's lifecycle after placement is reported back only
// through webhooks.
type Dialer interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error)
}

// Synthesizer renders persona speech to an audio handle.
type Synthesizer interface {
	Synthesize(ctx context.Context, voice, text string) (string, error)
}

// Transcriber submits a recording for asynchronous transcription; the
// result arrives later on the transcript webhook.
type Transcriber interface {
	Submit(ctx context.Context, callID, recordingURL string) error
}

// Report is the CallRecord-derived structure handed to the external
// fraud-reporting collaborator.
type Report struct {
	CallID          string    `json:"callId"`
	PhoneNumber     string    `json:"phoneNumber"`
	ScamCategory    string    `json:"scamCategory"`
	Outcome         string    `json:"outcome"`
	DurationSeconds int       `json:"durationSeconds"`
	EndedAt         time.Time `json:"endedAt"`
}

type Reporter interface {
	Report(ctx context.Context, r Report) (string, error)
}

// SimDialer is the development dialer: it fabricates call IDs without
// touching a provider, so campaigns can be exercised end to end locally.
type SimDialer struct{}

func (SimDialer) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	id := "sim-" + uuid.NewString()
	log.Printf("[telephony] sim call %s -> %s (from %s)", id, req.To, req.From)
	return id, nil
}

// SimSynthesizer returns a deterministic pseudo-handle per (voice, text).
type SimSynthesizer struct{}

func (SimSynthesizer) Synthesize(ctx context.Context, voice, text string) (string, error) {
	return fmt.Sprintf("sim://tts/%s/%d", voice, len(text)), nil
}

type NopTranscriber struct{}

func (NopTranscriber) Submit(ctx context.Context, callID, recordingURL string) error {
	log.Printf("[telephony] transcription skipped for %s (%s)", callID, recordingURL)
	return nil
}

type NopReporter struct{}

func (NopReporter) Report(ctx context.Context, r Report) (string, error) {
	log.Printf("[telephony] report skipped for %s (%s)", r.CallID, r.Outcome)
	return "", nil
}

// CachingSynthesizer memoizes audio handles by (voice, text) so repeated
// persona lines are synthesized once per process.
type CachingSynthesizer struct {
	inner Synthesizer
	mu    sync.Mutex
	cache map[string]string
}

func NewCachingSynthesizer(inner Synthesizer) *CachingSynthesizer {
	return &CachingSynthesizer{inner: inner, cache: make(map[string]string)}
}

func (c *CachingSynthesizer) Synthesize(ctx context.Context, voice, text string) (string, error) {
	key := voice + "\x00" + text

	c.mu.Lock()
	if url, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return url, nil
	}
	c.mu.Unlock()

	url, err := c.inner.Synthesize(ctx, voice, text)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[key] = url
	c.mu.Unlock()
	return url, nil
}
