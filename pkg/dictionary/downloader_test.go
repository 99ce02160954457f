package dictionary

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDictionary_LocalCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jmdict.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// An existing file must short-circuit before any network access.
	if err := EnsureDictionary(context.Background(), path); err != nil {
		t.Fatalf("EnsureDictionary failed with local file: %v", err)
	}
}

func tgz(t *testing.T, name string, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatalf("tar write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestDownloaderFetchesLatestRelease(t *testing.T) {
	archive := tgz(t, "jmdict-eng-common-3.6.1.json", []byte(testDict))

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			http.Error(w, "missing user agent", http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, `{"assets":[{"name":"kanjidic.json.tgz","browser_download_url":"%[1]s/nope"},
			{"name":"jmdict-eng-common-3.6.1.json.tgz","browser_download_url":"%[1]s/dict.json.tgz"}]}`, srv.URL)
	})
	mux.HandleFunc("/dict.json.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	d := &Downloader{Client: srv.Client(), ReleaseURL: srv.URL + "/releases/latest"}
	path := filepath.Join(t.TempDir(), "sub", "jmdict.json")
	if err := d.Ensure(context.Background(), path); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	entries, err := Load(path)
	if err != nil {
		t.Fatalf("load downloaded dictionary: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
}

func TestDownloaderReportsMissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"assets":[]}`))
	}))
	defer srv.Close()

	d := &Downloader{Client: srv.Client(), ReleaseURL: srv.URL}
	path := filepath.Join(t.TempDir(), "jmdict.json")
	if err := d.Ensure(context.Background(), path); err == nil {
		t.Fatalf("expected error when release has no dictionary asset")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be written, stat err=%v", err)
	}
}
