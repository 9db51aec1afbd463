// Package pipeline drives ingestion runs through their stages and exposes the
// run control surface used by the HTTP API and the CLI.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/docset/internal/config"
	"github.com/dgallion1/docset/internal/events"
	"github.com/dgallion1/docset/internal/metrics"
	"github.com/dgallion1/docset/internal/questions"
	"github.com/dgallion1/docset/internal/source"
	"github.com/dgallion1/docset/internal/storage"
)

// Fetcher retrieves raw source content.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*source.Document, error)
}

// Cleaner turns raw content into markdown text with a section map.
type Cleaner interface {
	Clean(doc *source.Document) (*source.Cleaned, error)
}

// Generator produces questions for one chunk group.
type Generator interface {
	Generate(ctx context.Context, req questions.Request) ([]questions.Question, error)
}

// Store persists articles, datasets and the article index.
type Store interface {
	FindByFingerprint(fingerprint string) (*storage.Entry, error)
	WriteArticle(a storage.Article) error
	WriteDataset(d storage.Dataset) error
	Commit(e storage.Entry) error
}

// Deps are the collaborators of an Orchestrator. Metrics may be nil.
type Deps struct {
	Fetcher   Fetcher
	Cleaner   Cleaner
	Generator Generator
	Store     Store
	Metrics   *metrics.Metrics
}

// Orchestrator owns the run registry and the event bus and runs every
// accepted ingestion in its own goroutine.
type Orchestrator struct {
	runs    *RunStore
	bus     *events.Bus
	fetcher Fetcher
	cleaner Cleaner
	gen     Generator
	store   Store
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     config.Config
	now     func() time.Time

	// mu orders wg.Add in Start against Stop's cancel and wg.Wait.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires the pipeline. Runs may be started right away; Launch
// only adds the background sweeper and ties run lifetimes to a parent context.
func NewOrchestrator(cfg config.Config, deps Deps, log *slog.Logger) *Orchestrator {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		runs:    NewRunStore(cfg.RunGrace),
		bus:     events.NewBus(cfg.RunGrace, cfg.StreamIdleTimeout, log),
		fetcher: deps.Fetcher,
		cleaner: deps.Cleaner,
		gen:     deps.Generator,
		store:   deps.Store,
		metrics: m,
		log:     log,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Launch starts the registry and bus sweeper. Cancelling ctx has the same
// effect as Stop without waiting.
func (o *Orchestrator) Launch(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case <-ctx.Done():
			o.cancel()
		case <-o.ctx.Done():
		}
	}()

	interval := o.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.ctx.Done():
				return
			case <-ticker.C:
				o.Sweep(o.now())
			}
		}
	}()
}

// Sweep evicts finished runs and stale event topics.
func (o *Orchestrator) Sweep(now time.Time) {
	runs := o.runs.Cleanup(now)
	topics := o.bus.Sweep(now)
	if runs > 0 || topics > 0 {
		o.log.Debug("swept runs", "runs", runs, "topics", topics)
	}
}

// Stop cancels in-flight runs and waits for every goroutine to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.cancel()
	o.mu.Unlock()
	o.wg.Wait()
}

// Start validates opts, registers a run and begins processing it in the
// background. Only option validation happens before Start returns; ctx is not
// used by the run itself, which outlives the caller's request.
func (o *Orchestrator) Start(ctx context.Context, sourceRef string, opts Options) (string, error) {
	id, _, err := o.start(ctx, sourceRef, opts, false)
	return id, err
}

// StartWatched is Start with a subscription attached before the run
// goroutine begins, so the caller sees every event from PENDING onwards.
func (o *Orchestrator) StartWatched(ctx context.Context, sourceRef string, opts Options) (string, *events.Subscription, error) {
	return o.start(ctx, sourceRef, opts, true)
}

func (o *Orchestrator) start(ctx context.Context, sourceRef string, opts Options, watch bool) (string, *events.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	ref := strings.TrimSpace(sourceRef)
	if ref == "" {
		return "", nil, runErr(events.KindInvalidOptions, events.StagePending,
			fmt.Errorf("%w: source reference is required", ErrInvalidOptions))
	}
	if err := opts.Validate(); err != nil {
		return "", nil, runErr(events.KindInvalidOptions, events.StagePending, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx.Err() != nil {
		return "", nil, ErrShuttingDown
	}

	now := o.now()
	var run *Run
	for {
		run = newRun(newRunID(), ref, source.Fingerprint(ref), opts, now)
		if o.runs.Put(run) {
			break
		}
	}
	o.metrics.RunStarted()
	o.log.Info("run accepted", "run_id", run.ID, "source", ref, "strategy", opts.SplitStrategy,
		"chunk_size", opts.ChunkSize, "total_questions", opts.TotalQuestions, "force", opts.ForceReingest)

	var sub *events.Subscription
	if watch {
		sub = o.bus.Subscribe(run.ID)
	}
	o.wg.Add(1)
	go o.execute(run)
	return run.ID, sub, nil
}

// Status returns a snapshot of runID.
func (o *Orchestrator) Status(runID string) (RunSnapshot, bool) {
	run := o.runs.Get(runID)
	if run == nil {
		return RunSnapshot{}, false
	}
	return run.Snapshot(), true
}

// Cancel asks runID to stop at its next stage boundary. A stage already in
// progress runs to completion.
func (o *Orchestrator) Cancel(runID string) error {
	run := o.runs.Get(runID)
	if run == nil {
		return ErrRunNotFound
	}
	if run.Stage().Terminal() {
		return ErrRunFinished
	}
	if run.cancelled.CompareAndSwap(false, true) {
		o.log.Info("cancellation requested", "run_id", runID, "stage", run.Stage())
	}
	return nil
}

// Subscribe attaches an observer to runID. Events published before the call
// are not replayed, except the terminal event of a finished run.
func (o *Orchestrator) Subscribe(runID string) (*events.Subscription, error) {
	if o.runs.Get(runID) == nil {
		return nil, ErrRunNotFound
	}
	return o.bus.Subscribe(runID), nil
}

func (o *Orchestrator) execute(run *Run) {
	defer o.wg.Done()
	log := o.log.With("run_id", run.ID, "source", run.SourceRef)
	w := &worker{o: o, run: run, log: log, entered: o.now()}

	defer func() {
		if r := recover(); r != nil {
			stage := run.Stage()
			log.Error("run panicked", "stage", stage, "panic", r)
			w.fail(runErr(stageKind(stage), stage, fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := w.process(o.ctx); err != nil {
		w.fail(err)
	}
}

func (o *Orchestrator) publish(ev events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.now()
	}
	o.bus.Publish(ev)
}
