package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/japaniel/yomikomi/pkg/analysis"
	"github.com/japaniel/yomikomi/pkg/api"
	"github.com/japaniel/yomikomi/pkg/config"
	"github.com/japaniel/yomikomi/pkg/db"
	"github.com/japaniel/yomikomi/pkg/dictionary"
	"github.com/japaniel/yomikomi/pkg/ingest"
	"github.com/japaniel/yomikomi/pkg/jobs"
	"github.com/japaniel/yomikomi/pkg/logging"
	"github.com/japaniel/yomikomi/pkg/source"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath   string
	dbPath       string
	kind         string
	path         string
	deckName     string
	sourceCol    string
	targetCol    string
	categoryCol  string
	workers      int
	batch        int
	maxSentences int
	fresh        bool
	readings     bool
	validate     bool
	summary      bool
	seed         bool
	deactivate   string
	serve        bool
	addr         string
	report       string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("yomikomi", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	fs.StringVar(&o.dbPath, "db", "", "Path to SQLite database (overrides config)")
	fs.StringVar(&o.kind, "kind", "", "Import kind: corpus, file-csv, file-json, deck-archive or sample")
	fs.StringVar(&o.path, "path", "", "Input file for file and deck imports")
	fs.StringVar(&o.deckName, "deck-name", "", "Provenance name for deck imports")
	fs.StringVar(&o.sourceCol, "source-col", "", "CSV column holding the Japanese sentence")
	fs.StringVar(&o.targetCol, "target-col", "", "CSV column holding the translation")
	fs.StringVar(&o.categoryCol, "category-col", "", "CSV column holding the category")
	fs.IntVar(&o.workers, "workers", 0, "Analysis workers (overrides config)")
	fs.IntVar(&o.batch, "batch", 0, "Records per database transaction (overrides config)")
	fs.IntVar(&o.maxSentences, "max-sentences", 0, "Cap on corpus pairs to import")
	fs.BoolVar(&o.fresh, "fresh", false, "Download the corpus even when cached")
	fs.BoolVar(&o.readings, "readings", true, "Compute kana readings and romanization")
	fs.BoolVar(&o.validate, "validate", false, "Check the input and estimate its size without importing")
	fs.BoolVar(&o.summary, "summary", false, "Print a summary of stored content")
	fs.BoolVar(&o.seed, "seed", false, "Import the built-in sample sentences")
	fs.StringVar(&o.deactivate, "deactivate", "", "Deactivate every sentence from this source")
	fs.BoolVar(&o.serve, "serve", false, "Run the HTTP API")
	fs.StringVar(&o.addr, "addr", "", "HTTP listen address (overrides config)")
	fs.StringVar(&o.report, "report", "", "Also write the import summary as YAML to this file")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func (o options) apply(cfg *config.Config) {
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.workers > 0 {
		cfg.Import.Workers = o.workers
	}
	if o.batch > 0 {
		cfg.Import.BatchSize = o.batch
	}
	if o.maxSentences > 0 {
		cfg.Corpus.MaxSentences = o.maxSentences
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
}

func (o options) request() jobs.Request {
	return jobs.Request{
		Kind: jobs.Kind(o.kind),
		Path: o.path,
		CSV: source.CSVConfig{
			SourceColumn:   o.sourceCol,
			TargetColumn:   o.targetCol,
			CategoryColumn: o.categoryCol,
		},
		Corpus:   jobs.CorpusRequest{MaxSentences: o.maxSentences, Fresh: o.fresh},
		DeckName: o.deckName,
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.LoadPath(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "yomikomi: %v\n", err)
		return 1
	}
	opts.apply(cfg)

	log := logging.NewWriter(stderr, cfg.Log)
	slog.SetDefault(log)

	switch {
	case opts.serve, opts.summary, opts.seed, opts.validate, opts.deactivate != "", opts.kind != "":
	default:
		fmt.Fprintln(stderr, "yomikomi: nothing to do; pass -kind, -seed, -validate, -summary, -deactivate or -serve")
		return 2
	}

	conn, err := db.Open(ctx, cfg.Database.Path, int(cfg.Database.BusyTimeout/time.Millisecond))
	if err != nil {
		log.Error("open database", slog.Any("error", err))
		return 1
	}
	defer conn.Close()
	log.Debug("database ready", slog.String("path", cfg.Database.Path))

	store := db.NewStore(conn)
	analyzer, err := newAnalyzer(ctx, cfg, opts.readings, log)
	if err != nil {
		log.Error("create analyzer", slog.Any("error", err))
		return 1
	}

	orch := ingest.New(store, analyzer)
	orch.Logger = log
	orch.Config = ingest.Config{
		BatchSize:       cfg.Import.BatchSize,
		Workers:         cfg.Import.Workers,
		QueueSize:       cfg.Import.QueueSize,
		FlushInterval:   cfg.Import.FlushInterval,
		CommitTimeout:   cfg.Import.CommitTimeout,
		MaxErrorDetails: cfg.Import.MaxErrorDetails,
	}
	m := jobs.NewManager(orch, store, jobs.Options{
		Corpus: source.CorpusConfig{
			CacheDir:     cfg.Corpus.CacheDir,
			BaseURL:      cfg.Corpus.BaseURL,
			SourceLang:   cfg.Corpus.SourceLang,
			TargetLang:   cfg.Corpus.TargetLang,
			MaxSentences: cfg.Corpus.MaxSentences,
			PreferCache:  cfg.Corpus.PreferCache,
			Timeout:      cfg.Corpus.FetchTimeout,
			Logger:       log,
		},
		MaxFileBytes: cfg.Import.MaxFileBytes,
		Logger:       log,
	})
	defer m.Close()

	switch {
	case opts.serve:
		return serve(ctx, cfg, m, log)
	case opts.summary:
		return printContent(ctx, m, stdout, log)
	case opts.deactivate != "":
		n, err := m.DeactivateSource(ctx, opts.deactivate)
		if err != nil {
			log.Error("deactivate source", slog.Any("error", err))
			return 1
		}
		fmt.Fprintf(stdout, "Deactivated %d sentences from %s\n", n, opts.deactivate)
		return 0
	case opts.validate:
		v := m.Validate(ctx, opts.request())
		if err := writeYAML(stdout, v); err != nil {
			log.Error("write validation", slog.Any("error", err))
			return 1
		}
		if !v.Valid {
			return 1
		}
		return 0
	}

	req := opts.request()
	if opts.seed {
		req = jobs.Request{Kind: jobs.KindSample}
	}
	return runImport(ctx, m, req, opts.report, stdout, log)
}

// newAnalyzer builds the analyzer. Readings come from kagome, with the JMdict
// file as a fallback when it is present or can be downloaded.
func newAnalyzer(ctx context.Context, cfg *config.Config, readings bool, log *slog.Logger) (*analysis.Analyzer, error) {
	if !readings {
		return &analysis.Analyzer{Logger: log}, nil
	}

	var lookup analysis.ReadingLookup
	path := cfg.Dictionary.Path
	if cfg.Dictionary.AutoDownload {
		d := dictionary.NewDownloader(0)
		d.Logger = log
		if err := d.Ensure(ctx, path); err != nil {
			log.Warn("dictionary unavailable, continuing without it", slog.String("path", path), slog.Any("error", err))
		}
	}
	if _, err := os.Stat(path); err == nil {
		start := time.Now()
		ix, err := dictionary.LoadIndex(path)
		if err != nil {
			log.Warn("load dictionary", slog.String("path", path), slog.Any("error", err))
		} else {
			lookup = ix
			log.Info("dictionary loaded", slog.Int("entries", ix.Len()), slog.Duration("took", time.Since(start)))
		}
	}

	provider, err := analysis.NewKagomeProvider(lookup)
	if err != nil {
		return nil, err
	}
	return &analysis.Analyzer{Provider: provider, Logger: log}, nil
}

type importReport struct {
	Job     string         `yaml:"job"`
	Kind    jobs.Kind      `yaml:"kind"`
	Summary ingest.Summary `yaml:"summary"`
}

func runImport(ctx context.Context, m *jobs.Manager, req jobs.Request, reportPath string, stdout io.Writer, log *slog.Logger) int {
	id, err := m.Submit(ctx, req)
	if err != nil {
		log.Error("import failed", slog.String("kind", string(req.Kind)), slog.Any("error", err))
		if errors.Is(err, jobs.ErrInvalidRequest) {
			return 2
		}
		return 1
	}

	sum, err := m.Wait(ctx, id)
	if err != nil {
		// Interrupted: stop reading and report what was done.
		if cerr := m.Cancel(id); cerr != nil {
			log.Warn("cancel import", slog.Any("error", cerr))
		}
		sum, _ = m.Wait(context.Background(), id)
	}

	rep := importReport{Job: id, Kind: req.Kind, Summary: sum}
	if err := writeYAML(stdout, rep); err != nil {
		log.Error("write summary", slog.Any("error", err))
		return 1
	}
	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			log.Error("create report", slog.Any("error", err))
			return 1
		}
		werr := writeYAML(f, rep)
		if err := errors.Join(werr, f.Close()); err != nil {
			log.Error("write report", slog.String("path", reportPath), slog.Any("error", err))
			return 1
		}
	}
	if sum.Canceled {
		return 130
	}
	return 0
}

func printContent(ctx context.Context, m *jobs.Manager, stdout io.Writer, log *slog.Logger) int {
	sum, err := m.ContentSummary(ctx)
	if err != nil {
		log.Error("content summary", slog.Any("error", err))
		return 1
	}
	sources, err := m.ListSources(ctx)
	if err != nil {
		log.Error("list sources", slog.Any("error", err))
		return 1
	}
	out := struct {
		Content db.ContentSummary `yaml:"content"`
		Sources []db.SourceCount  `yaml:"sources"`
	}{sum, sources}
	if err := writeYAML(stdout, out); err != nil {
		log.Error("write summary", slog.Any("error", err))
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, m *jobs.Manager, log *slog.Logger) int {
	gin.SetMode(gin.ReleaseMode)
	srv, err := api.NewServer(m, api.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		UploadDir:    cfg.Import.UploadDir,
		Logger:       log,
	})
	if err != nil {
		log.Error("create server", slog.Any("error", err))
		return 1
	}
	if err := srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout); err != nil {
		log.Error("server stopped", slog.Any("error", err))
		return 1
	}
	return 0
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
