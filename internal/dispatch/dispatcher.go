package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietwire/baitline/internal/bus"
	"github.com/quietwire/baitline/internal/config"
	"github.com/quietwire/baitline/internal/store"
	"github.com/quietwire/baitline/internal/telephony"
)

// Status is the read-only campaign snapshot served by the status surface.
type Status struct {
	IsActive       bool `json:"isActive"`
	QueueLength    int  `json:"queueLength"`
	ActiveCount    int  `json:"activeCount"`
	ProcessedToday int  `json:"processedToday"`
	DailyCap       int  `json:"dailyCap"`
	ConcurrencyCap int  `json:"concurrencyCap"`
}

// LoadTargetsFunc supplies the initial campaign queue (uploaded lists
// merged with the scheduled feed).
type LoadTargetsFunc func(ctx context.Context) []Target

// Dispatcher owns the campaign run: the target queue, the concurrency and
// daily caps, and per-call lifecycle bookkeeping. Calls are placed
// fire-and-forget; terminal status arrives back as bus events from the
// webhook layer.
type Dispatcher struct {
	cfg      config.CampaignConfig
	dialer   telephony.Dialer
	reporter telephony.Reporter
	records  *store.Store
	bus      *bus.Bus

	answerURL string
	statusURL string

	loadTargets LoadTargetsFunc

	mu             sync.Mutex
	running        bool
	queue          []Target
	queued         map[string]bool              // normalized number -> in queue this run
	active         map[string]*store.CallRecord // provider call ID -> record
	processedToday int
	cancel         context.CancelFunc
}

func NewDispatcher(cfg config.CampaignConfig, dialer telephony.Dialer, reporter telephony.Reporter, records *store.Store, b *bus.Bus, answerURL, statusURL string, load LoadTargetsFunc) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		dialer:      dialer,
		reporter:    reporter,
		records:     records,
		bus:         b,
		answerURL:   answerURL,
		statusURL:   statusURL,
		loadTargets: load,
		queued:      make(map[string]bool),
		active:      make(map[string]*store.CallRecord),
	}
}

// Start loads and deduplicates the target queue and begins the tick loop.
// Idempotent: a second Start while running is a no-op.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		log.Printf("[dispatch] start ignored: campaign already running")
		return nil
	}
	d.running = true
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	var targets []Target
	if d.loadTargets != nil {
		targets = d.loadTargets(runCtx)
	}
	enqueued := 0
	for _, t := range Dedupe(targets) {
		if d.Enqueue(t) {
			enqueued++
		}
	}
	log.Printf("[dispatch] campaign started: %d targets queued, dailyCap=%d, concurrencyCap=%d",
		enqueued, d.cfg.DailyCap, d.cfg.ConcurrencyCap)

	go d.run(runCtx)
	return nil
}

// Enqueue adds one target to the campaign queue; a normalized number
// appears at most once per run.
func (d *Dispatcher) Enqueue(t Target) bool {
	num := NormalizePhone(t.PhoneNumber)
	if num == "" {
		return false
	}
	t.PhoneNumber = num

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queued[num] {
		return false
	}
	d.queued[num] = true
	d.queue = append(d.queue, t)
	return true
}

func (d *Dispatcher) run(ctx context.Context) {
	interval := time.Duration(d.cfg.TickSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Tick(ctx)
		case ev := <-d.bus.Events:
			d.HandleEvent(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// Tick dispatches up to concurrencyCap−active queued targets. Targets are
// removed from the queue under the lock before dispatch, so two ticks can
// never double-dispatch the same one.
func (d *Dispatcher) Tick(ctx context.Context) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	if d.processedToday >= d.cfg.DailyCap {
		// Let in-flight calls drain before halting the loop; their
		// completion events still need bookkeeping.
		if len(d.active) > 0 {
			d.mu.Unlock()
			return
		}
		log.Printf("[dispatch] daily cap reached (%d), halting for the day", d.cfg.DailyCap)
		d.running = false
		cancel := d.cancel
		d.cancel = nil
		d.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}

	available := d.cfg.ConcurrencyCap - len(d.active)
	if remaining := d.cfg.DailyCap - d.processedToday; available > remaining {
		available = remaining
	}
	var batch []Target
	for available > 0 && len(d.queue) > 0 {
		batch = append(batch, d.queue[0])
		d.queue = d.queue[1:]
		available--
	}
	d.mu.Unlock()

	for _, t := range batch {
		// A per-target failure is already finalized inside initiate; the
		// tick loop keeps going.
		_ = d.initiate(ctx, t)
	}
}

// initiate creates the CallRecord and places the call. A placement
// failure finalizes the record as failed and is returned so paced callers
// can shorten their delay.
func (d *Dispatcher) initiate(ctx context.Context, t Target) error {
	rec := &store.CallRecord{
		ID:           uuid.NewString(),
		PhoneNumber:  t.PhoneNumber,
		ScamCategory: t.ScamCategory,
		Status:       store.StatusDialing,
		StartedAt:    time.Now(),
	}
	if err := d.records.SaveCallRecord(rec); err != nil {
		log.Printf("[dispatch] save record for %s: %v", t.PhoneNumber, err)
	}

	callID, err := d.dialer.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:        t.PhoneNumber,
		From:      d.cfg.CallerNumber,
		AnswerURL: d.answerURL,
		StatusURL: d.statusURL,
		Record:    true,
	})
	if err != nil {
		log.Printf("[dispatch] placement failed for %s: %v", t.PhoneNumber, err)
		d.finalize(ctx, rec, store.StatusFailed, store.OutcomeTechnicalError, 0)
		return fmt.Errorf("place call to %s: %w", t.PhoneNumber, err)
	}

	d.mu.Lock()
	d.active[callID] = rec
	d.mu.Unlock()
	log.Printf("[dispatch] dialing %s (call %s, record %s)", t.PhoneNumber, callID, rec.ID)
	return nil
}

// Place immediately initiates one call for a target, honoring the run
// and cap state. The feed sweep uses it for paced direct placement.
func (d *Dispatcher) Place(ctx context.Context, t Target) error {
	num := NormalizePhone(t.PhoneNumber)
	if num == "" {
		return errors.New("empty number")
	}
	t.PhoneNumber = num

	d.mu.Lock()
	switch {
	case !d.running:
		d.mu.Unlock()
		return errors.New("campaign not running")
	case d.processedToday >= d.cfg.DailyCap:
		d.mu.Unlock()
		return errors.New("daily cap reached")
	case len(d.active) >= d.cfg.ConcurrencyCap:
		d.mu.Unlock()
		return errors.New("at concurrency cap")
	case d.queued[num]:
		d.mu.Unlock()
		return errors.New("already dispatched this run")
	}
	d.queued[num] = true
	d.mu.Unlock()

	return d.initiate(ctx, t)
}

// HandleEvent applies a lifecycle event from the webhook layer to the
// record bookkeeping.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev bus.CallEvent) {
	d.mu.Lock()
	rec, ok := d.active[ev.CallID]
	if ok && (ev.Kind == bus.EventCompleted || ev.Kind == bus.EventFailed) {
		delete(d.active, ev.CallID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	switch ev.Kind {
	case bus.EventAnswered:
		d.mu.Lock()
		rec.Status = store.StatusConnected
		d.mu.Unlock()
		if err := d.records.SaveCallRecord(rec); err != nil {
			log.Printf("[dispatch] update record %s: %v", rec.ID, err)
		}
	case bus.EventCompleted:
		outcome := ClassifyOutcome(ev.Transcript, ev.DurationSec)
		d.finalize(ctx, rec, store.StatusCompleted, outcome, ev.DurationSec)
	case bus.EventFailed:
		d.finalize(ctx, rec, store.StatusFailed, store.OutcomeTechnicalError, ev.DurationSec)
	}
}

// exposurePhrases mark transcripts where the caller recognized the bait.
var exposurePhrases = []string{
	"this is a scam",
	"you're a bot",
	"you are a bot",
	"wasting my time",
	"stop calling",
	"not a real person",
}

// ClassifyOutcome grades a finished call from its transcript and duration.
// Short calls never got a conversation going; exposure phrases mean the
// caller caught on; anything else wasted their time successfully.
func ClassifyOutcome(transcript string, durationSec int) store.Outcome {
	lower := strings.ToLower(transcript)
	for _, phrase := range exposurePhrases {
		if strings.Contains(lower, phrase) {
			return store.OutcomeExposedScam
		}
	}
	if durationSec < 10 {
		return store.OutcomeTechnicalError
	}
	return store.OutcomeSuccessfulWaste
}

// reportable outcomes are handed to the fraud-reporting collaborator.
func reportable(o store.Outcome) bool {
	return o == store.OutcomeSuccessfulWaste || o == store.OutcomeExposedScam
}

func (d *Dispatcher) finalize(ctx context.Context, rec *store.CallRecord, status store.CallStatus, outcome store.Outcome, durationSec int) {
	d.mu.Lock()
	rec.Status = status
	rec.Outcome = outcome
	rec.EndedAt = time.Now()
	rec.DurationSeconds = durationSec
	d.processedToday++
	d.mu.Unlock()

	if err := d.records.SaveCallRecord(rec); err != nil {
		log.Printf("[dispatch] finalize record %s: %v", rec.ID, err)
	}
	log.Printf("[dispatch] call %s to %s finished: %s/%s (%ds)",
		rec.ID, rec.PhoneNumber, status, outcome, durationSec)

	if reportable(outcome) && d.reporter != nil {
		// Fire-and-forget: a reporting failure must not affect campaign state.
		report := telephony.Report{
			CallID:          rec.ID,
			PhoneNumber:     rec.PhoneNumber,
			ScamCategory:    rec.ScamCategory,
			Outcome:         string(outcome),
			DurationSeconds: durationSec,
			EndedAt:         rec.EndedAt,
		}
		go func() {
			if _, err := d.reporter.Report(context.WithoutCancel(ctx), report); err != nil {
				log.Printf("[dispatch] fraud report for %s failed: %v", rec.ID, err)
			}
		}()
	}
}

// Stop halts the campaign: every record still in a non-terminal state is
// finalized with outcome stopped, and the queue and active set are
// cleared. Calls already placed with the provider are not torn down; their
// termination still arrives via the status webhook and is ignored once the
// record is terminal.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running && len(d.active) == 0 && len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	d.cancel = nil

	stopped := make([]*store.CallRecord, 0, len(d.active))
	for id, rec := range d.active {
		rec.Status = store.StatusCompleted
		rec.Outcome = store.OutcomeStopped
		rec.EndedAt = time.Now()
		stopped = append(stopped, rec)
		delete(d.active, id)
	}
	d.queue = nil
	d.queued = make(map[string]bool)
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, rec := range stopped {
		if err := d.records.SaveCallRecord(rec); err != nil {
			log.Printf("[dispatch] finalize stopped record %s: %v", rec.ID, err)
		}
	}
	log.Printf("[dispatch] campaign stopped: %d in-flight calls finalized as stopped", len(stopped))
}

func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		IsActive:       d.running,
		QueueLength:    len(d.queue),
		ActiveCount:    len(d.active),
		ProcessedToday: d.processedToday,
		DailyCap:       d.cfg.DailyCap,
		ConcurrencyCap: d.cfg.ConcurrencyCap,
	}
}

// ResetDailyCount clears the daily counter; the gateway runs it from the
// midnight cron entry.
func (d *Dispatcher) ResetDailyCount() {
	d.mu.Lock()
	d.processedToday = 0
	d.mu.Unlock()
	log.Printf("[dispatch] daily counter reset")
}
