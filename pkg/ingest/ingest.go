// Package ingest drives an import: it reads tuples from a source.Parser, analyzes
// and de-duplicates them, stores them in batches and keeps the run statistics.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/japaniel/yomikomi/pkg/analysis"
	"github.com/japaniel/yomikomi/pkg/db"
	"github.com/japaniel/yomikomi/pkg/dedupe"
	"github.com/japaniel/yomikomi/pkg/source"
)

// State is the lifecycle state of one import run.
type State string

const (
	StateInitialized State = "initialized"
	StateParsing     State = "parsing"
	StateProcessing  State = "processing"
	StateFinalized   State = "finalized"
	// StateAborted is reached only when the source cannot be opened.
	StateAborted State = "aborted"
)

// Summary describes an import. TotalProcessed always equals
// Imported + Duplicates + Errors.
type Summary struct {
	State           State         `json:"state" yaml:"state"`
	Source          string        `json:"source" yaml:"source"`
	TotalProcessed  int           `json:"totalProcessed" yaml:"total_processed"`
	Imported        int           `json:"successfullyImported" yaml:"imported"`
	Duplicates      int           `json:"duplicatesSkipped" yaml:"duplicates"`
	Errors          int           `json:"errorCount" yaml:"errors"`
	ErrorDetails    []string      `json:"errorDetails" yaml:"error_details"`
	Duration        time.Duration `json:"-" yaml:"-"`
	DurationSeconds float64       `json:"durationSeconds" yaml:"duration_seconds"`
	Canceled        bool          `json:"canceled" yaml:"canceled"`
	StartedAt       time.Time     `json:"startedAt" yaml:"started_at"`
	FinishedAt      time.Time     `json:"finishedAt" yaml:"finished_at"`
}

func (s Summary) clone() Summary {
	s.ErrorDetails = slices.Clone(s.ErrorDetails)
	if s.ErrorDetails == nil {
		s.ErrorDetails = []string{}
	}
	return s
}

// Config tunes batching and concurrency.
type Config struct {
	BatchSize int
	// Workers <= 1 processes records sequentially on the calling goroutine.
	Workers int
	// QueueSize bounds the worker pool queue; 0 means Workers*2.
	QueueSize       int
	FlushInterval   time.Duration
	CommitTimeout   time.Duration
	MaxErrorDetails int
}

// DefaultConfig returns the settings used when a field is left at zero.
func DefaultConfig() Config {
	return Config{
		BatchSize:       50,
		Workers:         4,
		FlushInterval:   time.Second,
		CommitTimeout:   30 * time.Second,
		MaxErrorDetails: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = max(c.Workers, 1) * 2
	}
	if c.MaxErrorDetails <= 0 {
		c.MaxErrorDetails = d.MaxErrorDetails
	}
	return c
}

// Store is the persistence boundary the orchestrator writes through.
// *db.Store implements it.
type Store interface {
	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
	InsertBatch(ctx context.Context, sentences []db.Sentence) (db.BatchResult, error)
}

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Orchestrator runs imports against a Store.
type Orchestrator struct {
	Store    Store
	Analyzer *analysis.Analyzer
	// Detector defaults to one backed by Store.FingerprintExists.
	Detector *dedupe.Detector
	Config   Config
	// Logger nil means slog.Default().
	Logger *slog.Logger
	// OnProgress is called with a snapshot after every batch flush.
	OnProgress func(Summary)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// New creates an Orchestrator with DefaultConfig.
func New(store Store, analyzer *analysis.Analyzer) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Analyzer: analyzer,
		Config:   DefaultConfig(),
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Run is an import in progress.
type Run struct {
	source string
	state  atomic.Value // State
	snap   atomic.Pointer[Summary]
	done   chan struct{}
	final  Summary
	cancel context.CancelFunc
}

// Source is the provenance of the parser being imported.
func (r *Run) Source() string { return r.source }

// State returns the current lifecycle state.
func (r *Run) State() State { return r.state.Load().(State) }

func (r *Run) setState(s State) { r.state.Store(s) }

// Snapshot returns the most recently published summary. Counters in a
// snapshot are consistent with each other.
func (r *Run) Snapshot() Summary {
	s := r.snap.Load()
	if s == nil {
		return Summary{State: r.State(), Source: r.source, ErrorDetails: []string{}}
	}
	out := s.clone()
	out.State = r.State()
	return out
}

// Done is closed once the run is finalized.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run is finalized and returns its summary.
func (r *Run) Wait() Summary {
	<-r.done
	return r.final.clone()
}

// Cancel stops reading the source. Records already read are still accounted for.
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Start opens the source and processes it in the background. A source that
// cannot be opened aborts the run and the error wraps ErrSourceUnavailable.
func (o *Orchestrator) Start(ctx context.Context, p source.Parser) (*Run, error) {
	r, ex, err := o.open(ctx, p)
	if err != nil {
		return nil, err
	}
	go ex.execute()
	return r, nil
}

// Import is the synchronous form of Start. On a file-level failure it returns
// an aborted summary alongside the error.
func (o *Orchestrator) Import(ctx context.Context, p source.Parser) (Summary, error) {
	r, ex, err := o.open(ctx, p)
	if err != nil {
		return Summary{State: StateAborted, Source: p.Provenance(), ErrorDetails: []string{}}, err
	}
	ex.execute()
	return r.final.clone(), nil
}

type execution struct {
	o      *Orchestrator
	ctx    context.Context
	run    *Run
	stream source.Stream
	agg    *aggregator
	log    *slog.Logger
}

func (o *Orchestrator) open(ctx context.Context, p source.Parser) (*Run, *execution, error) {
	log := o.logger().With(slog.String("source", p.Provenance()))
	r := &Run{source: p.Provenance(), done: make(chan struct{})}
	r.setState(StateInitialized)

	started := time.Now()
	r.setState(StateParsing)
	stream, err := p.Open(ctx)
	if err != nil {
		r.setState(StateAborted)
		if !errors.Is(err, ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		log.Warn("import aborted", slog.Any("error", err))
		return nil, nil, fmt.Errorf("open %s: %w", p.Provenance(), err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	agg := o.newAggregator(r, started, log)
	agg.publish()
	return r, &execution{o: o, ctx: runCtx, run: r, stream: stream, agg: agg, log: log}, nil
}

func (ex *execution) execute() {
	defer ex.run.cancel()
	defer func() {
		if err := ex.stream.Close(); err != nil {
			ex.log.Warn("close source", slog.Any("error", err))
		}
	}()

	cfg := ex.o.Config.withDefaults()
	ex.run.setState(StateProcessing)
	ex.log.Info("import started", slog.Int("workers", cfg.Workers), slog.Int("batch_size", cfg.BatchSize))

	if cfg.Workers <= 1 {
		ex.sequential()
	} else {
		ex.concurrent(cfg)
	}

	sum := ex.agg.finish(ex.ctx)
	ex.run.final = sum
	ex.run.snap.Store(&sum)
	ex.run.setState(StateFinalized)
	close(ex.run.done)

	ex.log.Info("import finished",
		slog.Int("total", sum.TotalProcessed),
		slog.Int("imported", sum.Imported),
		slog.Int("duplicates", sum.Duplicates),
		slog.Int("errors", sum.Errors),
		slog.Bool("canceled", sum.Canceled),
		slog.Duration("took", sum.Duration))
}

// processed is one tuple after validation and analysis, tagged with its
// position in the stream.
type processed struct {
	index  int
	ref    string
	tuple  source.RawTuple
	result analysis.Result
	err    error
	// fatal marks the last item of a stream that failed mid-way.
	fatal bool
}

func refOf(index int, t source.RawTuple) string {
	if t.Ref != "" {
		return t.Ref
	}
	return fmt.Sprintf("record %d", index+1)
}

// readFailure turns a Next error into an item. Anything other than a
// *source.RecordError ends the stream.
func readFailure(index int, err error) processed {
	var re *source.RecordError
	if errors.As(err, &re) {
		return processed{index: index, ref: re.Ref, err: err}
	}
	ref := fmt.Sprintf("record %d", index+1)
	return processed{index: index, ref: ref, err: fmt.Errorf("%s: read failed: %w", ref, err), fatal: true}
}

// analyze validates the tuple and runs the analyzer, converting a panic into
// an ErrAnalysisFailure.
func (o *Orchestrator) analyze(index int, t source.RawTuple) (out processed) {
	t.SourceText = strings.TrimSpace(t.SourceText)
	t.TargetText = strings.TrimSpace(t.TargetText)
	t.Category = strings.TrimSpace(t.Category)
	out = processed{index: index, ref: refOf(index, t), tuple: t}

	switch {
	case t.SourceText == "":
		out.err = &source.RecordError{Ref: out.ref, Err: errors.New("missing source text")}
		return out
	case t.TargetText == "":
		out.err = &source.RecordError{Ref: out.ref, Err: errors.New("missing target text")}
		return out
	}

	defer func() {
		if rec := recover(); rec != nil {
			out.result = analysis.Result{}
			out.err = fmt.Errorf("%s: %w: %v", out.ref, ErrAnalysisFailure, rec)
		}
	}()
	out.result = o.Analyzer.Analyze(t.SourceText)
	return out
}

func (ex *execution) sequential() {
	for index := 0; ; index++ {
		if ex.ctx.Err() != nil {
			return
		}
		t, err := ex.stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		var item processed
		if err != nil {
			item = readFailure(index, err)
		} else {
			item = ex.o.analyze(index, t)
		}
		ex.agg.handle(ex.ctx, item)
		if item.fatal {
			return
		}
	}
}

// concurrent reads the stream on a producer goroutine, analyzes on the worker
// pool and aggregates in stream order on the calling goroutine.
func (ex *execution) concurrent(cfg Config) {
	var wp WorkerPoolInterface
	if ex.o.PoolFactory != nil {
		wp = ex.o.PoolFactory(cfg.Workers, cfg.QueueSize)
	} else {
		wp = NewWorkerPool(cfg.Workers, cfg.QueueSize)
	}
	resultCh := make(chan processed, cfg.QueueSize)

	// Workers keep running after cancellation so that tuples already read
	// still reach the aggregator.
	poolCtx, stopPool := context.WithCancel(context.WithoutCancel(ex.ctx))
	defer stopPool()
	wp.Start(poolCtx)

	go func() {
		defer func() {
			wp.Close()
			close(resultCh)
		}()
		for index := 0; ; index++ {
			if ex.ctx.Err() != nil {
				return
			}
			t, err := ex.stream.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				item := readFailure(index, err)
				resultCh <- item
				if item.fatal {
					return
				}
				continue
			}

			idx, tuple := index, t
			job := func(ctx context.Context) error {
				resultCh <- ex.o.analyze(idx, tuple)
				return nil
			}
			if err := wp.SubmitCtx(ex.ctx, job); err != nil {
				ref := refOf(idx, tuple)
				if ex.ctx.Err() != nil {
					resultCh <- processed{index: idx, ref: ref, err: fmt.Errorf("%s: %w", ref, ErrCanceled)}
					return
				}
				ex.log.Error("worker pool rejected record", slog.String("ref", ref), slog.Any("error", err))
				resultCh <- processed{index: idx, ref: ref, err: fmt.Errorf("%s: %w: %v", ref, ErrAnalysisFailure, err), fatal: true}
				return
			}
		}
	}()

	var tick <-chan time.Time
	if cfg.FlushInterval > 0 {
		ticker := time.NewTicker(cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	buffer := make(map[int]processed)
	next := 0
	for {
		select {
		case item, ok := <-resultCh:
			if !ok {
				// Every index is sent exactly once, so this only matters if a
				// pool implementation drops jobs.
				for _, idx := range slices.Sorted(maps.Keys(buffer)) {
					ex.agg.handle(ex.ctx, buffer[idx])
				}
				return
			}
			buffer[item.index] = item
			for {
				it, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				ex.agg.handle(ex.ctx, it)
				next++
			}
		case <-tick:
			ex.agg.bw.FlushIfStale(ex.ctx)
		}
	}
}

// aggregator owns the summary counters, the in-run fingerprint set and the
// batch writer. Only the goroutine running the import touches it.
type aggregator struct {
	o          *Orchestrator
	run        *Run
	sum        Summary
	seen       map[string]struct{}
	detector   *dedupe.Detector
	bw         *BatchWriter
	maxDetails int
	log        *slog.Logger
}

func (o *Orchestrator) newAggregator(r *Run, started time.Time, log *slog.Logger) *aggregator {
	cfg := o.Config.withDefaults()
	detector := o.Detector
	if detector == nil && o.Store != nil {
		detector = dedupe.NewDetector(o.Store.FingerprintExists, log)
	}
	a := &aggregator{
		o:   o,
		run: r,
		sum: Summary{
			State:        StateProcessing,
			Source:       r.source,
			StartedAt:    started,
			ErrorDetails: []string{},
		},
		seen:       make(map[string]struct{}),
		detector:   detector,
		maxDetails: cfg.MaxErrorDetails,
		log:        log,
	}
	a.bw = NewBatchWriter(o.insert, cfg.BatchSize, cfg.FlushInterval)
	a.bw.CommitTimeout = cfg.CommitTimeout
	a.bw.OnFlush = a.flushed
	return a
}

func (o *Orchestrator) insert(ctx context.Context, batch []db.Sentence) (db.BatchResult, error) {
	if o.Store == nil {
		return db.BatchResult{}, errors.New("no store configured")
	}
	return o.Store.InsertBatch(ctx, batch)
}

func (a *aggregator) handle(ctx context.Context, it processed) {
	defer a.publish()
	if it.err != nil {
		a.fail(it.err)
		return
	}
	if ctx.Err() != nil {
		a.fail(fmt.Errorf("%s: %w", it.ref, ErrCanceled))
		return
	}

	fp := dedupe.Fingerprint(it.tuple.SourceText)
	if _, ok := a.seen[fp]; ok || a.detector.IsDuplicate(ctx, fp) {
		a.sum.TotalProcessed++
		a.sum.Duplicates++
		return
	}
	a.seen[fp] = struct{}{}
	rec := Pending{Ref: it.ref, Sentence: newSentence(a.run.source, it, fp)}
	if err := a.bw.Submit(ctx, rec); err != nil {
		delete(a.seen, fp)
		a.fail(fmt.Errorf("%s: %w: %v", it.ref, ErrPersistence, err))
	}
}

func newSentence(provenance string, it processed, fingerprint string) db.Sentence {
	level := int(it.result.Level)
	difficulty := it.result.Difficulty
	s := db.Sentence{
		SourceText:       it.tuple.SourceText,
		TargetText:       it.tuple.TargetText,
		Reading:          it.result.Reading,
		Romanization:     it.result.Romanization,
		ProficiencyLevel: &level,
		DifficultyScore:  &difficulty,
		Source:           provenance,
		IsActive:         true,
		Fingerprint:      fingerprint,
	}
	if c := it.tuple.Category; c != "" {
		s.Category = &c
	}
	if ref := it.tuple.Ref; ref != "" {
		s.SourceRef = &ref
	}
	return s
}

func (a *aggregator) fail(err error) {
	a.sum.TotalProcessed++
	a.sum.Errors++
	if len(a.sum.ErrorDetails) < a.maxDetails {
		a.sum.ErrorDetails = append(a.sum.ErrorDetails, err.Error())
	}
	a.log.Debug("record failed", slog.Any("error", err))
}

func (a *aggregator) flushed(f Flushed) {
	if f.Err != nil {
		for _, p := range f.Records {
			delete(a.seen, p.Sentence.Fingerprint)
			a.fail(fmt.Errorf("%s: %w", p.Ref, f.Err))
		}
		a.log.Warn("batch failed", slog.Int("records", len(f.Records)), slog.Any("error", f.Err))
	} else {
		failed := make(map[int]error, len(f.Result.Failed))
		for _, rf := range f.Result.Failed {
			failed[rf.Index] = rf.Err
		}
		for i, p := range f.Records {
			err, bad := failed[i]
			switch {
			case !bad:
				a.sum.TotalProcessed++
				a.sum.Imported++
			case errors.Is(err, db.ErrDuplicate):
				// Another import stored it after our lookup.
				a.sum.TotalProcessed++
				a.sum.Duplicates++
			default:
				delete(a.seen, p.Sentence.Fingerprint)
				a.fail(fmt.Errorf("%s: %w: %v", p.Ref, ErrPersistence, err))
			}
		}
		a.log.Debug("batch stored", slog.Int("records", len(f.Records)), slog.Int("inserted", f.Result.Inserted))
	}

	a.publish()
	if a.o.OnProgress != nil {
		a.o.OnProgress(a.snapshot())
	}
}

func (a *aggregator) snapshot() Summary {
	s := a.sum.clone()
	s.Duration = time.Since(s.StartedAt)
	s.DurationSeconds = s.Duration.Seconds()
	return s
}

func (a *aggregator) publish() {
	s := a.snapshot()
	a.run.snap.Store(&s)
}

// finish flushes what is buffered, failing it when ctx is done, and seals the summary.
func (a *aggregator) finish(ctx context.Context) Summary {
	if ctx.Err() != nil {
		a.sum.Canceled = true
	}
	if err := a.bw.Close(ctx); err != nil {
		a.log.Debug("batch writer closed with error", slog.Any("error", err))
	}
	a.sum.State = StateFinalized
	a.sum.FinishedAt = time.Now()
	a.sum.Duration = a.sum.FinishedAt.Sub(a.sum.StartedAt)
	a.sum.DurationSeconds = a.sum.Duration.Seconds()
	return a.sum.clone()
}
