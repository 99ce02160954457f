package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

const validYAML = `
database:
  path: "/var/lib/yomikomi/content.db"
  busy_timeout: "2s"

import:
  batch_size: 200
  workers: 8
  flush_interval: "500ms"
  commit_timeout: "1m"
  max_error_details: 25
  max_file_bytes: 1048576
  upload_dir: "/tmp/uploads"

corpus:
  cache_dir: "/var/cache/tatoeba"
  max_sentences: 5000
  prefer_cache: true

dictionary:
  path: "/usr/share/jmdict.json"
  auto_download: true

server:
  addr: "127.0.0.1:9090"

log:
  level: "debug"
  format: "json"
`

func TestLoad_ValidYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Path != "/var/lib/yomikomi/content.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Database.BusyTimeout != 2*time.Second {
		t.Errorf("database.busy_timeout = %v, want 2s", cfg.Database.BusyTimeout)
	}
	if cfg.Import.BatchSize != 200 || cfg.Import.Workers != 8 {
		t.Errorf("import batch_size/workers = %d/%d, want 200/8", cfg.Import.BatchSize, cfg.Import.Workers)
	}
	if cfg.Import.FlushInterval != 500*time.Millisecond {
		t.Errorf("import.flush_interval = %v, want 500ms", cfg.Import.FlushInterval)
	}
	if cfg.Import.MaxErrorDetails != 25 || cfg.Import.MaxFileBytes != 1048576 {
		t.Errorf("import caps = %d/%d", cfg.Import.MaxErrorDetails, cfg.Import.MaxFileBytes)
	}
	if cfg.Corpus.MaxSentences != 5000 || !cfg.Corpus.PreferCache {
		t.Errorf("corpus = %+v", cfg.Corpus)
	}
	// not in the file, so the default applies
	if cfg.Corpus.SourceLang != "jpn" || cfg.Corpus.TargetLang != "eng" {
		t.Errorf("corpus langs = %q/%q, want jpn/eng", cfg.Corpus.SourceLang, cfg.Corpus.TargetLang)
	}
	if !cfg.Dictionary.AutoDownload {
		t.Error("dictionary.auto_download should be true")
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_ENVOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("IMPORT_WORKERS", "1")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Import.Workers != 1 {
		t.Errorf("import.workers = %d, want 1 (ENV override)", cfg.Import.Workers)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want %q (ENV override)", cfg.Log.Level, "warn")
	}
}

func TestLoad_NoFile_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	origDir, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	_ = os.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Path != "yomikomi.db" {
		t.Errorf("database.path = %q, want default", cfg.Database.Path)
	}
	if cfg.Import.BatchSize != 50 || cfg.Import.Workers != 4 || cfg.Import.MaxErrorDetails != 10 {
		t.Errorf("import defaults = %+v", cfg.Import)
	}
	if cfg.Import.MaxFileBytes != 100<<20 {
		t.Errorf("import.max_file_bytes = %d, want 100 MiB", cfg.Import.MaxFileBytes)
	}
	if cfg.Corpus.FetchTimeout != 10*time.Minute {
		t.Errorf("corpus.fetch_timeout = %v, want 10m", cfg.Corpus.FetchTimeout)
	}
}

func TestLoad_ExplicitPathNotFound(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty db path", func(c *Config) { c.Database.Path = " " }, "database.path"},
		{"zero batch", func(c *Config) { c.Import.BatchSize = 0 }, "batch_size"},
		{"no workers", func(c *Config) { c.Import.Workers = 0 }, "workers"},
		{"no error details", func(c *Config) { c.Import.MaxErrorDetails = 0 }, "max_error_details"},
		{"same langs", func(c *Config) { c.Corpus.TargetLang = "jpn" }, "must differ"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "format"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeYAML(t, t.TempDir(), validYAML)
			cfg, err := LoadPath(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
