package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quietwire/baitline/internal/bus"
	"github.com/quietwire/baitline/internal/config"
	"github.com/quietwire/baitline/internal/store"
	"github.com/quietwire/baitline/internal/telephony"
)

type fakeDialer struct {
	mu     sync.Mutex
	placed []string
	failOn map[string]bool
	nextID int
}

func (f *fakeDialer) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[req.To] {
		return "", errors.New("provider rejected number")
	}
	f.nextID++
	id := fmt.Sprintf("call-%d", f.nextID)
	f.placed = append(f.placed, req.To)
	return id, nil
}

func (f *fakeDialer) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func newTestDispatcher(t *testing.T, campaign config.CampaignConfig, dialer telephony.Dialer) (*Dispatcher, *store.Store, *bus.Bus) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "dispatch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	b := bus.New(16)
	d := NewDispatcher(campaign, dialer, telephony.NopReporter{}, st, b,
		"http://localhost/webhook/answer", "http://localhost/webhook/status", nil)
	return d, st, b
}

func TestTick_RespectsConcurrencyCap(t *testing.T) {
	dialer := &fakeDialer{}
	d, _, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 100, ConcurrencyCap: 2, TickSeconds: 5,
	}, dialer)

	for i := 0; i < 5; i++ {
		d.Enqueue(Target{PhoneNumber: fmt.Sprintf("555000%04d", i)})
	}
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	ctx := context.Background()
	d.Tick(ctx)
	if got := d.Status().ActiveCount; got != 2 {
		t.Errorf("active after tick 1 = %d, want 2", got)
	}

	// Another tick with both slots busy dispatches nothing.
	d.Tick(ctx)
	if got := d.Status().ActiveCount; got != 2 {
		t.Errorf("active after tick 2 = %d, want 2 (cap)", got)
	}
	if dialer.placedCount() != 2 {
		t.Errorf("placed = %d, want 2", dialer.placedCount())
	}
	if got := d.Status().QueueLength; got != 3 {
		t.Errorf("queue = %d, want 3", got)
	}
}

func TestScenarioA_DailyCapHaltsWithTargetsLeft(t *testing.T) {
	dialer := &fakeDialer{}
	d, _, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 2, ConcurrencyCap: 1, TickSeconds: 5,
	}, dialer)

	for _, n := range []string{"5550000001", "5550000002", "5550000003"} {
		d.Enqueue(Target{PhoneNumber: n})
	}
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	ctx := context.Background()

	completeActive := func() {
		d.mu.Lock()
		var ids []string
		for id := range d.active {
			ids = append(ids, id)
		}
		d.mu.Unlock()
		for _, id := range ids {
			d.HandleEvent(ctx, bus.CallEvent{Kind: bus.EventCompleted, CallID: id, DurationSec: 120})
		}
	}

	d.Tick(ctx) // dispatches target 1
	completeActive()
	d.Tick(ctx) // dispatches target 2
	completeActive()
	d.Tick(ctx) // daily cap reached, halts

	st := d.Status()
	if st.ProcessedToday != 2 {
		t.Errorf("processedToday = %d, want 2", st.ProcessedToday)
	}
	if st.IsActive {
		t.Error("campaign should have halted for the day")
	}
	if st.QueueLength != 1 {
		t.Errorf("queue = %d, want 1 remaining target", st.QueueLength)
	}
	if dialer.placedCount() != 2 {
		t.Errorf("placed = %d, want exactly 2", dialer.placedCount())
	}
}

func TestScenarioD_StopFinalizesDialingCalls(t *testing.T) {
	dialer := &fakeDialer{}
	d, st, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 10, ConcurrencyCap: 2, TickSeconds: 5,
	}, dialer)

	d.Enqueue(Target{PhoneNumber: "5550000001"})
	d.Enqueue(Target{PhoneNumber: "5550000002"})
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	ctx := context.Background()
	d.Tick(ctx)
	if got := d.Status().ActiveCount; got != 2 {
		t.Fatalf("active = %d, want 2 dialing", got)
	}

	var recIDs []string
	d.mu.Lock()
	for _, rec := range d.active {
		recIDs = append(recIDs, rec.ID)
	}
	d.mu.Unlock()

	d.Stop()

	status := d.Status()
	if status.IsActive {
		t.Error("campaign should be stopped")
	}
	if status.ActiveCount != 0 {
		t.Errorf("active = %d, want 0", status.ActiveCount)
	}
	if status.QueueLength != 0 {
		t.Errorf("queue = %d, want cleared", status.QueueLength)
	}

	for _, id := range recIDs {
		rec, err := st.GetCallRecord(id)
		if err != nil || rec == nil {
			t.Fatalf("record %s not persisted: %v", id, err)
		}
		if rec.Outcome != store.OutcomeStopped {
			t.Errorf("record %s outcome = %v, want stopped", id, rec.Outcome)
		}
		if !rec.Status.Terminal() {
			t.Errorf("record %s status = %v, want terminal", id, rec.Status)
		}
	}
}

func TestInitiate_FailureDoesNotBlockCampaign(t *testing.T) {
	dialer := &fakeDialer{failOn: map[string]bool{"+15550000001": true}}
	d, _, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 10, ConcurrencyCap: 2, TickSeconds: 5,
	}, dialer)

	d.Enqueue(Target{PhoneNumber: "5550000001"}) // will fail placement
	d.Enqueue(Target{PhoneNumber: "5550000002"})
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	d.Tick(context.Background())

	st := d.Status()
	if st.ProcessedToday != 1 {
		t.Errorf("processedToday = %d, want 1 (the failed target)", st.ProcessedToday)
	}
	if st.ActiveCount != 1 {
		t.Errorf("active = %d, want 1 (the good target)", st.ActiveCount)
	}
	if dialer.placedCount() != 1 {
		t.Errorf("placed = %d, want 1", dialer.placedCount())
	}
}

func TestPlace_ProviderFailureReturnsError(t *testing.T) {
	dialer := &fakeDialer{failOn: map[string]bool{"+15550000001": true}}
	d, st, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 10, ConcurrencyCap: 2, TickSeconds: 5,
	}, dialer)

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	ctx := context.Background()

	// The paced sweep needs the failure surfaced so it can shorten its
	// delay, even though the record is finalized internally.
	if err := d.Place(ctx, Target{PhoneNumber: "5550000001"}); err == nil {
		t.Fatal("Place should return the placement error")
	}

	status := d.Status()
	if status.ActiveCount != 0 {
		t.Errorf("active = %d, want 0 after failed placement", status.ActiveCount)
	}
	if status.ProcessedToday != 1 {
		t.Errorf("processedToday = %d, want 1 (the failed target)", status.ProcessedToday)
	}
	if n, err := st.CountCompletedSince(time.Now().Add(-time.Minute)); err != nil || n != 1 {
		t.Errorf("terminal records = %d (%v), want 1 finalized failure", n, err)
	}

	if err := d.Place(ctx, Target{PhoneNumber: "5550000002"}); err != nil {
		t.Errorf("good placement returned %v", err)
	}
	if got := d.Status().ActiveCount; got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestPlace_RejectsWhenNotRunning(t *testing.T) {
	d, _, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 10, ConcurrencyCap: 2, TickSeconds: 5,
	}, &fakeDialer{})

	if err := d.Place(context.Background(), Target{PhoneNumber: "5550000001"}); err == nil {
		t.Fatal("Place should fail while the campaign is stopped")
	}
}

func TestEnqueue_UniquePerRun(t *testing.T) {
	d, _, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 10, ConcurrencyCap: 1, TickSeconds: 5,
	}, &fakeDialer{})

	if !d.Enqueue(Target{PhoneNumber: "5551234567"}) {
		t.Error("first enqueue should succeed")
	}
	if d.Enqueue(Target{PhoneNumber: "(555) 123-4567"}) {
		t.Error("same number in another format should be rejected")
	}
	if d.Status().QueueLength != 1 {
		t.Errorf("queue = %d, want 1", d.Status().QueueLength)
	}
}

func TestStart_Idempotent(t *testing.T) {
	d, _, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 10, ConcurrencyCap: 1, TickSeconds: 60,
	}, &fakeDialer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("second Start error: %v", err)
	}
	if !d.Status().IsActive {
		t.Error("dispatcher should be running")
	}
	d.Stop()
	if d.Status().IsActive {
		t.Error("dispatcher should be stopped")
	}
}

func TestHandleEvent_AnsweredMarksConnected(t *testing.T) {
	dialer := &fakeDialer{}
	d, st, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 10, ConcurrencyCap: 1, TickSeconds: 5,
	}, dialer)

	d.Enqueue(Target{PhoneNumber: "5550000001"})
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	ctx := context.Background()
	d.Tick(ctx)

	d.mu.Lock()
	var callID, recID string
	for id, rec := range d.active {
		callID, recID = id, rec.ID
	}
	d.mu.Unlock()

	d.HandleEvent(ctx, bus.CallEvent{Kind: bus.EventAnswered, CallID: callID})
	rec, _ := st.GetCallRecord(recID)
	if rec.Status != store.StatusConnected {
		t.Errorf("status = %v, want connected", rec.Status)
	}

	d.HandleEvent(ctx, bus.CallEvent{Kind: bus.EventCompleted, CallID: callID, DurationSec: 300})
	rec, _ = st.GetCallRecord(recID)
	if rec.Status != store.StatusCompleted {
		t.Errorf("status = %v, want completed", rec.Status)
	}
	if rec.Outcome != store.OutcomeSuccessfulWaste {
		t.Errorf("outcome = %v, want successful_waste", rec.Outcome)
	}
	if rec.DurationSeconds != 300 {
		t.Errorf("duration = %d, want 300", rec.DurationSeconds)
	}

	// A duplicate terminal event for an unknown call ID is ignored.
	d.HandleEvent(ctx, bus.CallEvent{Kind: bus.EventCompleted, CallID: callID, DurationSec: 999})
	rec, _ = st.GetCallRecord(recID)
	if rec.DurationSeconds != 300 {
		t.Errorf("duplicate event mutated record: duration = %d", rec.DurationSeconds)
	}
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		duration   int
		want       store.Outcome
	}{
		{"long rambling call", "and then my nephew Gerald said", 600, store.OutcomeSuccessfulWaste},
		{"caught on", "wait, this is a scam, stop calling me", 90, store.OutcomeExposedScam},
		{"exposure beats duration", "you're a bot", 5, store.OutcomeExposedScam},
		{"dead air", "", 3, store.OutcomeTechnicalError},
		{"boundary just under", "hello", 9, store.OutcomeTechnicalError},
		{"boundary at threshold", "hello there", 10, store.OutcomeSuccessfulWaste},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyOutcome(tt.transcript, tt.duration); got != tt.want {
				t.Errorf("ClassifyOutcome = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConcurrencyInvariant_NeverExceedsCap(t *testing.T) {
	dialer := &fakeDialer{}
	capN := 3
	d, _, _ := newTestDispatcher(t, config.CampaignConfig{
		DailyCap: 1000, ConcurrencyCap: capN, TickSeconds: 5,
	}, dialer)

	for i := 0; i < 50; i++ {
		d.Enqueue(Target{PhoneNumber: fmt.Sprintf("555%07d", i)})
	}
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	ctx := context.Background()
	for tick := 0; tick < 30; tick++ {
		d.Tick(ctx)
		if got := d.Status().ActiveCount; got > capN {
			t.Fatalf("tick %d: active = %d exceeds cap %d", tick, got, capN)
		}
		// Complete one call per tick so the queue drains.
		d.mu.Lock()
		var id string
		for cid := range d.active {
			id = cid
			break
		}
		d.mu.Unlock()
		if id != "" {
			d.HandleEvent(ctx, bus.CallEvent{Kind: bus.EventCompleted, CallID: id, DurationSec: 60, OccurredAt: time.Now()})
		}
	}
}
