// Package jobs runs imports in the background and keeps track of them by id.
package jobs

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/japaniel/yomikomi/pkg/db"
	"github.com/japaniel/yomikomi/pkg/ingest"
	"github.com/japaniel/yomikomi/pkg/source"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid import request")
)

// Kind selects the parser for a request.
type Kind string

const (
	KindCorpus Kind = "corpus"
	KindCSV    Kind = "file-csv"
	KindJSON   Kind = "file-json"
	KindDeck   Kind = "deck-archive"
	KindSample Kind = "sample"
)

// Kinds lists the kinds accepted by Submit.
var Kinds = []Kind{KindCorpus, KindCSV, KindJSON, KindDeck, KindSample}

// CorpusRequest overrides the manager's corpus defaults for one import.
type CorpusRequest struct {
	MaxSentences int  `json:"maxSentences,omitempty"`
	Fresh        bool `json:"fresh,omitempty"`
}

// Request describes one import.
type Request struct {
	Kind   Kind              `json:"kind"`
	Path   string            `json:"path,omitempty"`
	CSV    source.CSVConfig  `json:"csv"`
	JSON   source.JSONConfig `json:"json"`
	Corpus CorpusRequest     `json:"corpus"`
	// DeckName overrides the deck provenance name.
	DeckName string `json:"deckName,omitempty"`
	// Temporary removes Path once the job has finished, and its directory
	// when that is left empty.
	Temporary bool `json:"-"`
}

// Status is the externally visible state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Job is a point-in-time view of a submitted import.
type Job struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Source      string         `json:"source"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
	Summary     ingest.Summary `json:"summary"`
}

type job struct {
	id        string
	kind      Kind
	source    string
	submitted time.Time
	run       *ingest.Run
	err       error
}

func (j *job) view() Job {
	out := Job{ID: j.id, Kind: j.kind, Source: j.source, SubmittedAt: j.submitted}
	if j.err != nil {
		out.Status = StatusFailed
		out.Error = j.err.Error()
		out.Summary = ingest.Summary{State: ingest.StateAborted, Source: j.source, ErrorDetails: []string{}}
		return out
	}
	select {
	case <-j.run.Done():
		out.Summary = j.run.Wait()
		out.Status = StatusCompleted
		if out.Summary.Canceled {
			out.Status = StatusCanceled
		}
	default:
		out.Summary = j.run.Snapshot()
		out.Status = StatusRunning
	}
	return out
}

// Options configures a Manager.
type Options struct {
	// Corpus holds the defaults for KindCorpus requests.
	Corpus source.CorpusConfig
	// MaxFileBytes rejects larger input files; 0 means 100 MiB.
	MaxFileBytes int64
	// TempDir receives extracted deck collections.
	TempDir string
	Logger  *slog.Logger
}

// Manager submits imports to an Orchestrator and tracks them.
type Manager struct {
	orch  *ingest.Orchestrator
	store *db.Store
	opts  Options
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	jobs    map[string]*job
	entropy *ulid.MonotonicEntropy
}

// NewManager returns a Manager importing through orch. store serves the
// content queries and may be nil when those are not used.
func NewManager(orch *ingest.Orchestrator, store *db.Store, opts Options) *Manager {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 100 << 20
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		orch:    orch,
		store:   store,
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// newID must be called with m.mu held; the entropy source is not goroutine safe.
func (m *Manager) newID() string {
	return ulid.MustNew(ulid.Now(), m.entropy).String()
}

// Submit opens the source and starts the import in the background. If the
// source cannot be opened the job is recorded as failed and the returned error
// wraps ingest.ErrSourceUnavailable; the id is still returned.
func (m *Manager) Submit(ctx context.Context, req Request) (string, error) {
	p, err := m.parser(req)
	if err != nil {
		m.removeTemporary(req)
		return "", err
	}
	if err := m.checkFile(req); err != nil {
		m.removeTemporary(req)
		return m.record(req.Kind, p.Provenance(), nil, err), err
	}

	run, err := m.orch.Start(m.ctx, p)
	if err != nil {
		m.removeTemporary(req)
		return m.record(req.Kind, p.Provenance(), nil, err), err
	}
	id := m.record(req.Kind, p.Provenance(), run, nil)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		sum := run.Wait()
		m.removeTemporary(req)
		m.log.Info("import job done", slog.String("job", id), slog.String("source", sum.Source),
			slog.Int("imported", sum.Imported), slog.Int("errors", sum.Errors))
	}()
	return id, nil
}

func (m *Manager) record(kind Kind, provenance string, run *ingest.Run, err error) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	m.jobs[id] = &job{id: id, kind: kind, source: provenance, submitted: time.Now(), run: run, err: err}
	if err != nil {
		m.log.Warn("import job failed", slog.String("job", id), slog.Any("error", err))
	} else {
		m.log.Info("import job submitted", slog.String("job", id), slog.String("source", provenance))
	}
	return id
}

func (m *Manager) removeTemporary(req Request) {
	if !req.Temporary || req.Path == "" {
		return
	}
	if err := os.Remove(req.Path); err != nil && !os.IsNotExist(err) {
		m.log.Warn("remove upload", slog.String("path", req.Path), slog.Any("error", err))
		return
	}
	// Fails while the directory still holds other files.
	_ = os.Remove(filepath.Dir(req.Path))
}

// parser builds the Parser for req without touching the input.
func (m *Manager) parser(req Request) (source.Parser, error) {
	switch req.Kind {
	case KindCSV, KindJSON, KindDeck:
		if strings.TrimSpace(req.Path) == "" {
			return nil, fmt.Errorf("%w: %s import needs a path", ErrInvalidRequest, req.Kind)
		}
	}
	switch req.Kind {
	case KindCSV:
		return source.NewCSVParser(req.Path, req.CSV), nil
	case KindJSON:
		return source.NewJSONParser(req.Path, req.JSON), nil
	case KindDeck:
		return &source.DeckParser{Path: req.Path, Name: req.DeckName, TempDir: m.opts.TempDir}, nil
	case KindCorpus:
		cfg := m.opts.Corpus
		if req.Corpus.MaxSentences > 0 {
			cfg.MaxSentences = req.Corpus.MaxSentences
		}
		if req.Corpus.Fresh {
			cfg.PreferCache = false
		}
		if cfg.Logger == nil {
			cfg.Logger = m.log
		}
		return source.NewCorpusParser(cfg), nil
	case KindSample:
		return sampleParser(), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
}

// checkFile applies the size limits to file based requests.
func (m *Manager) checkFile(req Request) error {
	switch req.Kind {
	case KindCSV, KindJSON, KindDeck:
	default:
		return nil
	}
	fi, err := os.Stat(req.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ingest.ErrSourceUnavailable, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ingest.ErrSourceUnavailable, req.Path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ingest.ErrSourceUnavailable, filepath.Base(req.Path))
	}
	if fi.Size() > m.opts.MaxFileBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ingest.ErrSourceUnavailable, filepath.Base(req.Path), fi.Size(), m.opts.MaxFileBytes)
	}
	return nil
}

func (m *Manager) get(id string) (*job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j, nil
}

// Status returns the current view of a job.
func (m *Manager) Status(id string) (Job, error) {
	j, err := m.get(id)
	if err != nil {
		return Job{}, err
	}
	return j.view(), nil
}

// Summary returns the partial summary of a running job or the final one.
func (m *Manager) Summary(id string) (ingest.Summary, error) {
	j, err := m.get(id)
	if err != nil {
		return ingest.Summary{}, err
	}
	return j.view().Summary, nil
}

// Cancel asks a running job to stop. Canceling a finished job does nothing.
func (m *Manager) Cancel(id string) error {
	j, err := m.get(id)
	if err != nil {
		return err
	}
	if j.run != nil {
		j.run.Cancel()
		m.log.Info("import job cancel requested", slog.String("job", id))
	}
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (ingest.Summary, error) {
	j, err := m.get(id)
	if err != nil {
		return ingest.Summary{}, err
	}
	if j.run == nil {
		return j.view().Summary, j.err
	}
	select {
	case <-j.run.Done():
		return j.run.Wait(), nil
	case <-ctx.Done():
		return j.run.Snapshot(), ctx.Err()
	}
}

// List returns every job, oldest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	all := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		all = append(all, j)
	}
	m.mu.RUnlock()

	// ULIDs sort by creation time.
	slices.SortFunc(all, func(a, b *job) int { return strings.Compare(a.id, b.id) })
	out := make([]Job, len(all))
	for i, j := range all {
		out[i] = j.view()
	}
	return out
}

// SeedSample imports the built-in sample sentences.
func (m *Manager) SeedSample(ctx context.Context) (string, error) {
	return m.Submit(ctx, Request{Kind: KindSample})
}

// Close cancels running jobs and waits for them to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) requireStore() error {
	if m.store == nil {
		return errors.New("jobs: no store configured")
	}
	return nil
}

// ContentSummary reports what is stored.
func (m *Manager) ContentSummary(ctx context.Context) (db.ContentSummary, error) {
	if err := m.requireStore(); err != nil {
		return db.ContentSummary{}, err
	}
	return m.store.Summary(ctx)
}

// ListSources reports stored sentence counts per provenance.
func (m *Manager) ListSources(ctx context.Context) ([]db.SourceCount, error) {
	if err := m.requireStore(); err != nil {
		return nil, err
	}
	return m.store.Sources(ctx)
}

// DeactivateSource hides every sentence imported from src. Rows are kept.
func (m *Manager) DeactivateSource(ctx context.Context, src string) (int64, error) {
	if err := m.requireStore(); err != nil {
		return 0, err
	}
	n, err := m.store.DeactivateSource(ctx, src)
	if err != nil {
		return 0, err
	}
	m.log.Info("source deactivated", slog.String("source", src), slog.Int64("sentences", n))
	return n, nil
}
