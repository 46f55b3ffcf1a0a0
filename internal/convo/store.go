// Package convo holds the transient per-caller conversation state that
// must survive across independent webhook turns. All state lives behind
// the Store interface so it can be swapped for a shared cache in a
// multi-instance deployment, or mocked in tests.
package convo

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/quietwire/baitline/internal/persona"
)

const (
	SpeakerCaller  = "caller"
	SpeakerPersona = "persona"

	// SilenceMarker is recorded in the turn history when a capture window
	// elapsed with no input.
	SilenceMarker = "<silence>"
)

type Turn struct {
	Speaker   string    `json:"speaker"`
	Utterance string    `json:"utterance"`
	At        time.Time `json:"at"`
}

// State is one caller's in-flight conversation. Created on first contact,
// mutated once per turn, removed by TTL sweep or explicit termination.
type State struct {
	CallerKey      string
	Persona        string
	Phase          string
	Turns          []Turn
	Counters       persona.Counters
	LastActivityAt time.Time
	TurnCount      int
	// CallCount mirrors the durable assignment's total at ensure time so
	// the controller can shorten delays for returning callers.
	CallCount int
}

// Store is the keyed conversation-state contract. Entries are created at
// first contact, refreshed every turn, and deleted by Sweep or Delete.
type Store interface {
	Get(key string) (*State, bool)
	// Ensure returns the state for key, creating it via assign when absent.
	// The second result reports whether the caller is returning (a live
	// state already existed).
	Ensure(key string, assign func() (personaName string, callCount int)) (*State, bool)
	// Upsert mutates the state for key under the store's lock and
	// refreshes its activity time. A missing key is created empty first.
	Upsert(key string, fn func(*State)) *State
	Delete(key string)
	Sweep() int
	Len() int
}

// MemoryStore is the single-instance implementation: a mutex-guarded map
// with TTL eviction. Per-key serialization is enough because the provider
// waits for each response before re-invoking, so successive turns for one
// caller never overlap.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*State
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*State),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetNow injects a clock for tests.
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Get(key string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.entries[key]
	return st, ok
}

func (s *MemoryStore) Ensure(key string, assign func() (string, int)) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.entries[key]; ok {
		s.touchLocked(st)
		return st, true
	}

	name, calls := assign()
	st := &State{
		CallerKey:      key,
		Persona:        name,
		CallCount:      calls,
		LastActivityAt: s.now(),
		Counters:       persona.Counters{Mood: persona.MoodCalm},
	}
	s.entries[key] = st
	return st, false
}

func (s *MemoryStore) Upsert(key string, fn func(*State)) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.entries[key]
	if !ok {
		st = &State{
			CallerKey: key,
			Counters:  persona.Counters{Mood: persona.MoodCalm},
		}
		s.entries[key] = st
	}
	fn(st)
	s.touchLocked(st)
	return st
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Sweep evicts every entry idle longer than the TTL and returns the
// eviction count.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	evicted := 0
	for key, st := range s.entries {
		if st.LastActivityAt.Before(cutoff) {
			delete(s.entries, key)
			evicted++
			log.Printf("[convo] evicted %s after %d turns (idle since %s)",
				key, st.TurnCount, st.LastActivityAt.Format(time.RFC3339))
		}
	}
	return evicted
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeper runs Sweep on its own timer until ctx is canceled. The
// interval must be much larger than a single turn so a sweep never races
// an in-flight exchange.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Printf("[convo] sweep evicted %d stale conversations", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// touchLocked refreshes activity time, keeping it monotonically
// non-decreasing even if the injected clock rewinds.
func (s *MemoryStore) touchLocked(st *State) {
	if now := s.now(); now.After(st.LastActivityAt) {
		st.LastActivityAt = now
	}
}

// AppendTurn records one history entry and bumps the turn counter when the
// persona speaks (a turn is one capture/response exchange).
func (st *State) AppendTurn(speaker, utterance string, at time.Time) {
	st.Turns = append(st.Turns, Turn{Speaker: speaker, Utterance: utterance, At: at})
	if speaker == SpeakerPersona {
		st.TurnCount++
	}
}
