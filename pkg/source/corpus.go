package source

import (
	"bufio"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCorpusURL is the Tatoeba per-language export root.
const DefaultCorpusURL = "https://downloads.tatoeba.org/exports/per_language"

// CorpusConfig configures the Tatoeba parser.
type CorpusConfig struct {
	CacheDir   string `json:"cacheDir,omitempty" yaml:"cache_dir"`
	BaseURL    string `json:"baseURL,omitempty" yaml:"base_url"`
	SourceLang string `json:"sourceLang,omitempty" yaml:"source_lang"`
	TargetLang string `json:"targetLang,omitempty" yaml:"target_lang"`
	// MaxSentences caps the number of pairs yielded; 0 means no cap.
	MaxSentences int `json:"maxSentences,omitempty" yaml:"max_sentences"`
	// PreferCache reuses files already in CacheDir instead of downloading fresh ones.
	PreferCache bool          `json:"preferCache" yaml:"prefer_cache"`
	Timeout     time.Duration `json:"-" yaml:"timeout"`

	Client *http.Client `json:"-" yaml:"-"`
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c CorpusConfig) withDefaults() CorpusConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultCorpusURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.SourceLang == "" {
		c.SourceLang = "jpn"
	}
	if c.TargetLang == "" {
		c.TargetLang = "eng"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(os.TempDir(), "yomikomi-tatoeba")
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// CorpusParser pairs Tatoeba sentences in SourceLang with their first linked
// translation in TargetLang.
type CorpusParser struct {
	Config CorpusConfig
}

// NewCorpusParser returns a parser using cfg.
func NewCorpusParser(cfg CorpusConfig) *CorpusParser {
	return &CorpusParser{Config: cfg}
}

func (p *CorpusParser) Provenance() string { return "corpus:tatoeba" }

type corpusFile struct {
	remote string // path under BaseURL
	local  string // file name in CacheDir
}

func (c CorpusConfig) files() (src, tgt, links corpusFile) {
	s, t := c.SourceLang, c.TargetLang
	src = corpusFile{remote: fmt.Sprintf("%s/%s_sentences.tsv.bz2", s, s), local: s + "_sentences.tsv"}
	tgt = corpusFile{remote: fmt.Sprintf("%s/%s_sentences.tsv.bz2", t, t), local: t + "_sentences.tsv"}
	links = corpusFile{remote: fmt.Sprintf("%s/%s-%s_links.tsv.bz2", s, s, t), local: s + "-" + t + "_links.tsv"}
	return src, tgt, links
}

// CachePaths returns the local file paths the parser reads.
func (p *CorpusParser) CachePaths() []string {
	cfg := p.Config.withDefaults()
	src, tgt, links := cfg.files()
	return []string{
		filepath.Join(cfg.CacheDir, src.local),
		filepath.Join(cfg.CacheDir, tgt.local),
		filepath.Join(cfg.CacheDir, links.local),
	}
}

// Open makes sure the exports are cached, loads the link table and the linked
// translations, then streams the source-language file. Every network or cache
// failure happens here, before any tuple is produced.
func (p *CorpusParser) Open(ctx context.Context) (Stream, error) {
	cfg := p.Config.withDefaults()
	srcFile, tgtFile, linksFile := cfg.files()

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, unavailable("create cache dir: %v", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(fetchCtx)
	for _, f := range []corpusFile{srcFile, tgtFile, linksFile} {
		local := filepath.Join(cfg.CacheDir, f.local)
		if cfg.PreferCache {
			if _, err := os.Stat(local); err == nil {
				cfg.Logger.Debug("using cached corpus file", slog.String("path", local))
				continue
			}
		}
		g.Go(func() error {
			return fetchBzip2(gctx, cfg.Client, cfg.BaseURL+"/"+f.remote, local, cfg.Logger)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, unavailable("fetch corpus: %v", err)
	}

	links, err := loadLinks(filepath.Join(cfg.CacheDir, linksFile.local))
	if err != nil {
		return nil, unavailable("read links: %v", err)
	}
	needed := make(map[string]struct{}, len(links))
	for _, ids := range links {
		for _, id := range ids {
			needed[id] = struct{}{}
		}
	}
	targets, err := loadSentences(filepath.Join(cfg.CacheDir, tgtFile.local), needed)
	if err != nil {
		return nil, unavailable("read %s sentences: %v", cfg.TargetLang, err)
	}

	f, err := os.Open(filepath.Join(cfg.CacheDir, srcFile.local))
	if err != nil {
		return nil, unavailable("open %s sentences: %v", cfg.SourceLang, err)
	}
	cfg.Logger.Info("corpus ready",
		slog.Int("links", len(links)), slog.Int("translations", len(targets)), slog.Int("max_sentences", cfg.MaxSentences))

	return &corpusStream{
		f:       f,
		sc:      newTSVScanner(f),
		links:   links,
		targets: targets,
		max:     cfg.MaxSentences,
	}, nil
}

// fetchBzip2 downloads url, decompresses it and writes it to dest atomically.
func fetchBzip2(ctx context.Context, client *http.Client, url, dest string, log *slog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "yomikomi")
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, bzip2.NewReader(resp.Body))
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("decompress %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	log.Info("corpus file downloaded", slog.String("url", url), slog.Int64("bytes", n), slog.Duration("took", time.Since(start)))
	return nil
}

func newTSVScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return sc
}

// loadLinks maps each source sentence id to its linked translation ids in
// file order.
func loadLinks(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	links := make(map[string][]string)
	sc := newTSVScanner(f)
	for sc.Scan() {
		from, to, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			continue
		}
		to, _, _ = strings.Cut(to, "\t")
		links[from] = append(links[from], strings.TrimSpace(to))
	}
	return links, sc.Err()
}

// loadSentences reads "id<TAB>lang<TAB>text" lines, keeping only ids in keep.
func loadSentences(path string, keep map[string]struct{}) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := make(map[string]string, len(keep))
	sc := newTSVScanner(f)
	for sc.Scan() {
		id, _, text, ok := splitSentenceLine(sc.Text())
		if !ok {
			continue
		}
		if _, want := keep[id]; want {
			out[id] = text
		}
	}
	return out, sc.Err()
}

func splitSentenceLine(line string) (id, lang, text string, ok bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], strings.TrimSpace(parts[2]), true
}

type corpusStream struct {
	f       *os.File
	sc      *bufio.Scanner
	links   map[string][]string
	targets map[string]string
	max     int
	yielded int
}

func (s *corpusStream) Next() (RawTuple, error) {
	if s.max > 0 && s.yielded >= s.max {
		return RawTuple{}, io.EOF
	}
	for s.sc.Scan() {
		id, _, text, ok := splitSentenceLine(s.sc.Text())
		if !ok {
			continue
		}
		target, found := s.translation(id)
		if !found {
			continue
		}
		s.yielded++
		return RawTuple{SourceText: text, TargetText: target, Ref: "sentence " + id}, nil
	}
	if err := s.sc.Err(); err != nil {
		return RawTuple{}, err
	}
	return RawTuple{}, io.EOF
}

// translation returns the first linked translation present in the target file.
func (s *corpusStream) translation(id string) (string, bool) {
	for _, tid := range s.links[id] {
		if text, ok := s.targets[tid]; ok {
			return text, true
		}
	}
	return "", false
}

func (s *corpusStream) Close() error { return s.f.Close() }
