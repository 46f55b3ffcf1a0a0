package telephony

import (
	"encoding/json"
	"net/http"
)

// GatherSpec opens an input-capture window. The provider enforces the
// timeout and re-invokes ActionURL with whatever was captured; when
// FallbackRecord is set it records in parallel in case the window elapses
// with no input.
type GatherSpec struct {
	TimeoutSeconds int    `json:"timeoutSeconds"`
	ActionURL      string `json:"actionUrl"`
	FallbackRecord bool   `json:"fallbackRecord,omitempty"`
}

type RecordSpec struct {
	MaxSeconds  int    `json:"maxSeconds"`
	CallbackURL string `json:"callbackUrl"`
}

// Instruction is one declarative step for the provider. Webhook handlers
// return an ordered list of these; the provider executes them in sequence
// and the final gather/pause/hangup decides when this process is invoked
// next. This is the sole mechanism for advancing a call.
type Instruction struct {
	PauseSeconds int         `json:"pauseSeconds,omitempty"`
	Say          string      `json:"say,omitempty"`
	Voice        string      `json:"voice,omitempty"`
	AudioURL     string      `json:"audioUrl,omitempty"`
	Gather       *GatherSpec `json:"gather,omitempty"`
	Record       *RecordSpec `json:"record,omitempty"`
	RedirectURL  string      `json:"redirectUrl,omitempty"`
	Hangup       bool        `json:"hangup,omitempty"`
}

type Response struct {
	Instructions []Instruction `json:"instructions"`
}

func (r *Response) Add(in Instruction) *Response {
	r.Instructions = append(r.Instructions, in)
	return r
}

func (r *Response) Pause(seconds int) *Response {
	return r.Add(Instruction{PauseSeconds: seconds})
}

func (r *Response) Say(voice, text string) *Response {
	return r.Add(Instruction{Say: text, Voice: voice})
}

func (r *Response) Play(audioURL string) *Response {
	return r.Add(Instruction{AudioURL: audioURL})
}

func (r *Response) Gather(spec GatherSpec) *Response {
	return r.Add(Instruction{Gather: &spec})
}

func (r *Response) Redirect(url string) *Response {
	return r.Add(Instruction{RedirectURL: url})
}

func (r *Response) Hangup() *Response {
	return r.Add(Instruction{Hangup: true})
}

// Write serializes the response for the provider. Always 200: a webhook
// error must degrade to an instruction, never to a failed HTTP exchange.
func (r *Response) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(r)
}
