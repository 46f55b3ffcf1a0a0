// Package gateway assembles the daemon: durable store, persona engine,
// conversation state, webhook server, dispatcher, and the cron entries
// that drive feed sweeps and the daily counter reset.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quietwire/baitline/internal/bus"
	"github.com/quietwire/baitline/internal/callflow"
	"github.com/quietwire/baitline/internal/config"
	"github.com/quietwire/baitline/internal/convo"
	"github.com/quietwire/baitline/internal/dispatch"
	"github.com/quietwire/baitline/internal/persona"
	"github.com/quietwire/baitline/internal/store"
	"github.com/quietwire/baitline/internal/telephony"
)

// resetCron fires the daily counter reset at local midnight.
const resetCron = "0 0 0 * * *"

// Options for creating a Gateway.
type Options struct {
	Dialer      telephony.Dialer
	Synthesizer telephony.Synthesizer
	Transcriber telephony.Transcriber
	Reporter    telephony.Reporter
	PersonaSeed int64
	SignalChan  chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	records    *store.Store
	convos     *convo.MemoryStore
	bus        *bus.Bus
	catalog    *persona.Catalog
	engine     *persona.Engine
	source     *dispatch.Source
	dispatcher *dispatch.Dispatcher
	server     *callflow.Server
	cron       *cron.Cron
	signalChan chan os.Signal
	cancel     context.CancelFunc
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom collaborators for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	records, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.records = records

	g.bus = bus.New(config.DefaultBufSize)
	g.convos = convo.NewMemoryStore(time.Duration(cfg.Conversation.TTLMinutes) * time.Minute)

	seed := opts.PersonaSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g.catalog = persona.DefaultCatalog()
	g.engine = persona.NewEngine(seed)

	dialer, synth, scribe, reporter := g.providers(opts)

	feeds := make([]dispatch.Feed, 0, len(cfg.Source.FeedURLs))
	for i, url := range cfg.Source.FeedURLs {
		feeds = append(feeds, dispatch.NewHTTPFeed(fmt.Sprintf("feed-%d", i+1), url))
	}
	g.source = dispatch.NewSource(cfg.Source, feeds)

	base := g.callbackBase()
	g.dispatcher = dispatch.NewDispatcher(
		cfg.Campaign, dialer, reporter, records, g.bus,
		base+"/webhook/answer", base+"/webhook/status",
		g.loadTargets,
	)

	ctrl := callflow.NewController(callflow.ControllerConfig{
		Catalog:           g.catalog,
		Engine:            g.engine,
		Convos:            g.convos,
		Records:           records,
		Synth:             synth,
		Transcriber:       scribe,
		Bus:               g.bus,
		CallbackBaseURL:   base,
		BusinessCallbacks: cfg.Campaign.BusinessCallbacks,
		PersonalCallbacks: cfg.Campaign.PersonalCallbacks,
	})
	g.server = callflow.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, ctrl, g.dispatcher)

	g.cron = cron.New(cron.WithSeconds())
	return g, nil
}

// providers resolves the telephony collaborators: injected ones win, then
// the configured HTTP provider, then the local simulator.
func (g *Gateway) providers(opts Options) (telephony.Dialer, telephony.Synthesizer, telephony.Transcriber, telephony.Reporter) {
	var dialer telephony.Dialer = telephony.SimDialer{}
	var synth telephony.Synthesizer = telephony.SimSynthesizer{}
	var scribe telephony.Transcriber = telephony.NopTranscriber{}
	var reporter telephony.Reporter = telephony.NopReporter{}

	if g.cfg.Provider.Type == "http" && g.cfg.Provider.BaseURL != "" {
		client := telephony.NewHTTPClient(g.cfg.Provider.BaseURL, g.cfg.Provider.APIKey)
		dialer, synth, scribe, reporter = client, client, client, client
	}

	if opts.Dialer != nil {
		dialer = opts.Dialer
	}
	if opts.Synthesizer != nil {
		synth = opts.Synthesizer
	}
	if opts.Transcriber != nil {
		scribe = opts.Transcriber
	}
	if opts.Reporter != nil {
		reporter = opts.Reporter
	}
	return dialer, telephony.NewCachingSynthesizer(synth), scribe, reporter
}

func (g *Gateway) callbackBase() string {
	if g.cfg.Gateway.CallbackBaseURL != "" {
		return g.cfg.Gateway.CallbackBaseURL
	}
	return fmt.Sprintf("http://%s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)
}

// loadTargets supplies the campaign's initial queue: the optional uploaded
// target list merged with the current feed candidates.
func (g *Gateway) loadTargets(ctx context.Context) []dispatch.Target {
	var targets []dispatch.Target

	if path := g.cfg.Campaign.TargetsFile; path != "" {
		fromFile, err := readTargetsFile(path)
		if err != nil {
			log.Printf("[gateway] targets file warning: %v", err)
		} else {
			log.Printf("[gateway] loaded %d targets from %s", len(fromFile), path)
			targets = append(targets, fromFile...)
		}
	}

	targets = append(targets, g.source.FetchCandidates(ctx)...)
	return targets
}

func readTargetsFile(path string) ([]dispatch.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	var raw []struct {
		PhoneNumber string  `json:"phoneNumber"`
		Category    string  `json:"category"`
		Confidence  float64 `json:"confidence"`
		Location    string  `json:"location"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	targets := make([]dispatch.Target, 0, len(raw))
	for _, r := range raw {
		targets = append(targets, dispatch.Target{
			PhoneNumber:     r.PhoneNumber,
			ScamCategory:    r.Category,
			ConfidenceScore: r.Confidence,
			OriginSource:    "file",
			LocationHint:    r.Location,
		})
	}
	return targets, nil
}

// Run starts every component and blocks until a shutdown signal arrives.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	g.server.Start()
	g.convos.StartSweeper(ctx, time.Duration(g.cfg.Conversation.SweepMinutes)*time.Minute)

	if err := g.scheduleJobs(ctx); err != nil {
		return err
	}
	g.cron.Start()

	log.Printf("[gateway] running on %s:%d (personas: %v)",
		g.cfg.Gateway.Host, g.cfg.Gateway.Port, g.catalog.Names())

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// scheduleJobs registers the recurring entries: the feed sweep that places
// paced calls into the running campaign, and the midnight cap reset.
func (g *Gateway) scheduleJobs(ctx context.Context) error {
	sweepExpr := g.cfg.Source.SweepCron
	if sweepExpr == "" {
		sweepExpr = config.DefaultSweepCron
	}
	if _, err := g.cron.AddFunc(sweepExpr, func() {
		if !g.dispatcher.Status().IsActive {
			log.Printf("[gateway] feed sweep skipped: campaign not running")
			return
		}
		placed := g.source.RunOnce(ctx, g.dispatcher.Place)
		log.Printf("[gateway] feed sweep placed %d calls", placed)
	}); err != nil {
		return fmt.Errorf("schedule feed sweep: %w", err)
	}

	if _, err := g.cron.AddFunc(resetCron, g.dispatcher.ResetDailyCount); err != nil {
		return fmt.Errorf("schedule daily reset: %w", err)
	}
	return nil
}

// Shutdown stops components in reverse start order.
func (g *Gateway) Shutdown() error {
	if g.cancel != nil {
		g.cancel()
	}
	g.cron.Stop()
	g.dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.server.Stop(shutdownCtx); err != nil {
		log.Printf("[gateway] server shutdown warning: %v", err)
	}

	if err := g.records.Close(); err != nil {
		log.Printf("[gateway] store close warning: %v", err)
	}
	log.Printf("[gateway] stopped")
	return nil
}
