package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietwire/baitline/internal/config"
)

// Feed is one upstream supplier of suspected fraud numbers.
type Feed interface {
	Name() string
	Fetch(ctx context.Context) ([]Target, error)
}

// HTTPFeed reads a JSON array of candidate records from a report feed.
type HTTPFeed struct {
	name   string
	url    string
	client *http.Client
}

func NewHTTPFeed(name, url string) *HTTPFeed {
	return &HTTPFeed{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *HTTPFeed) Name() string { return f.name }

func (f *HTTPFeed) Fetch(ctx context.Context) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", f.name, resp.StatusCode)
	}

	var raw []struct {
		PhoneNumber string  `json:"phoneNumber"`
		Number      string  `json:"number"`
		Category    string  `json:"category"`
		Confidence  float64 `json:"confidence"`
		Location    string  `json:"location"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.name, err)
	}

	targets := make([]Target, 0, len(raw))
	for _, r := range raw {
		num := r.PhoneNumber
		if num == "" {
			num = r.Number
		}
		targets = append(targets, Target{
			PhoneNumber:     num,
			ScamCategory:    r.Category,
			ConfidenceScore: r.Confidence,
			OriginSource:    f.name,
			LocationHint:    r.Location,
		})
	}
	return targets, nil
}

// PlaceFunc initiates one call for a candidate.
type PlaceFunc func(ctx context.Context, t Target) error

// Source merges candidate targets from independently-failing feeds,
// normalizes and deduplicates them, applies the business-hours policy,
// and paces sequential placement to respect provider rate limits.
type Source struct {
	feeds          []Feed
	defaultZone    string
	windowStart    int
	windowEnd      int
	interCallDelay time.Duration
	failureBackoff time.Duration
	now            func() time.Time

	mu sync.Mutex
}

func NewSource(cfg config.SourceConfig, feeds []Feed) *Source {
	return &Source{
		feeds:          feeds,
		defaultZone:    cfg.DefaultTimezone,
		windowStart:    cfg.CallWindowStartHour,
		windowEnd:      cfg.CallWindowEndHour,
		interCallDelay: time.Duration(cfg.InterCallDelaySeconds) * time.Second,
		failureBackoff: time.Duration(cfg.FailureBackoffSeconds) * time.Second,
		now:            time.Now,
	}
}

// SetNow injects a clock for tests.
func (s *Source) SetNow(now func() time.Time) {
	s.now = now
}

// FetchCandidates fans out over all feeds concurrently; a feed that errors
// contributes an empty list rather than aborting the merge. The merged set
// is normalized, deduplicated, and filtered to callable candidates.
func (s *Source) FetchCandidates(ctx context.Context) []Target {
	results := make([][]Target, len(s.feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range s.feeds {
		i, feed := i, feed
		g.Go(func() error {
			targets, err := feed.Fetch(gctx)
			if err != nil {
				log.Printf("[source] feed %s failed: %v", feed.Name(), err)
				return nil
			}
			results[i] = targets
			return nil
		})
	}
	_ = g.Wait()

	var merged []Target
	for _, batch := range results {
		merged = append(merged, batch...)
	}
	deduped := Dedupe(merged)

	callable := make([]Target, 0, len(deduped))
	deferred := 0
	for _, t := range deduped {
		if s.Callable(t) {
			callable = append(callable, t)
		} else {
			deferred++
		}
	}
	log.Printf("[source] merged %d raw -> %d unique, %d callable, %d deferred outside call window",
		len(merged), len(deduped), len(callable), deferred)
	return callable
}

// Callable enforces the business-hours policy: a candidate may be dialed
// only when its inferred local time falls inside the configured window.
// Out-of-window candidates are deferred to a later sweep, not dropped.
func (s *Source) Callable(t Target) bool {
	if s.windowStart == 0 && s.windowEnd == 0 {
		return true
	}
	loc := TimezoneFor(t.LocationHint, s.defaultZone)
	hour := s.now().In(loc).Hour()
	return hour >= s.windowStart && hour < s.windowEnd
}

// RunOnce fetches candidates and places them one at a time, interCallDelay
// apart; a placement failure costs only the shorter failure backoff. The
// per-run processed set guarantees a number is never dialed twice within
// one run even when it arrived from multiple feeds. Returns the number of
// successful placements.
func (s *Source) RunOnce(ctx context.Context, place PlaceFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.FetchCandidates(ctx)
	processed := make(map[string]bool, len(candidates))
	placed := 0

	for i, t := range candidates {
		if ctx.Err() != nil {
			return placed
		}
		if processed[t.PhoneNumber] {
			continue
		}
		processed[t.PhoneNumber] = true

		delay := s.interCallDelay
		if err := place(ctx, t); err != nil {
			log.Printf("[source] placement failed for %s: %v", t.PhoneNumber, err)
			delay = s.failureBackoff
		} else {
			placed++
		}

		if i < len(candidates)-1 {
			if !sleepCtx(ctx, delay) {
				return placed
			}
		}
	}
	return placed
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
