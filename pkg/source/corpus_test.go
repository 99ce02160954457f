package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpusServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.FileServer(http.Dir("testdata/tatoeba")))
	t.Cleanup(srv.Close)
	return srv
}

func TestCorpusParserPairsLinkedSentences(t *testing.T) {
	srv := corpusServer(t)
	p := NewCorpusParser(CorpusConfig{BaseURL: srv.URL, CacheDir: t.TempDir(), Client: srv.Client()})
	assert.Equal(t, "corpus:tatoeba", p.Provenance())

	d := drain(t, p)
	require.NoError(t, d.streamErr)
	require.Empty(t, d.recordErr)
	require.Len(t, d.tuples, 3)
	assert.Equal(t, RawTuple{SourceText: "きれいな花ですね。", TargetText: "What a pretty flower.", Ref: "sentence 1297"}, d.tuples[0])
	// the first link wins when a sentence has several translations
	assert.Equal(t, "I am a student.", d.tuples[1].TargetText)
	assert.Equal(t, "sentence 1300", d.tuples[2].Ref)

	for _, path := range p.CachePaths() {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
}

func TestCorpusParserMaxSentences(t *testing.T) {
	srv := corpusServer(t)
	p := NewCorpusParser(CorpusConfig{BaseURL: srv.URL, CacheDir: t.TempDir(), Client: srv.Client(), MaxSentences: 2})
	d := drain(t, p)
	require.Len(t, d.tuples, 2)
	assert.Equal(t, "sentence 1298", d.tuples[1].Ref)
}

func TestCorpusParserSkipsMissingTranslation(t *testing.T) {
	cache := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(cache, name), []byte(body), 0o644))
	}
	write("jpn_sentences.tsv", "10\tjpn\t猫が好きです。\n11\tjpn\t犬です。\n")
	write("eng_sentences.tsv", "21\teng\tI like cats.\n22\teng\tI love cats.\n")
	// 10 links first to 99, which the export no longer has; 11 has no translation at all.
	write("jpn-eng_links.tsv", "10\t99\n10\t21\n10\t22\n11\t98\n")

	p := NewCorpusParser(CorpusConfig{BaseURL: "http://127.0.0.1:0", CacheDir: cache, PreferCache: true})
	d := drain(t, p)
	require.NoError(t, d.streamErr)
	require.Len(t, d.tuples, 1)
	assert.Equal(t, RawTuple{SourceText: "猫が好きです。", TargetText: "I like cats.", Ref: "sentence 10"}, d.tuples[0])
}

func TestCorpusParserPreferCacheSkipsDownload(t *testing.T) {
	srv := corpusServer(t)
	cache := t.TempDir()
	first := NewCorpusParser(CorpusConfig{BaseURL: srv.URL, CacheDir: cache, Client: srv.Client()})
	require.Len(t, drain(t, first).tuples, 3)
	srv.Close()

	cached := NewCorpusParser(CorpusConfig{BaseURL: srv.URL, CacheDir: cache, PreferCache: true})
	require.Len(t, drain(t, cached).tuples, 3)

	fresh := NewCorpusParser(CorpusConfig{BaseURL: srv.URL, CacheDir: cache})
	_, err := fresh.Open(context.Background())
	assert.True(t, errors.Is(err, ErrSourceUnavailable), "got %v", err)
}

func TestCorpusParserMissingExport(t *testing.T) {
	srv := corpusServer(t)
	p := NewCorpusParser(CorpusConfig{BaseURL: srv.URL, CacheDir: t.TempDir(), Client: srv.Client(), TargetLang: "fra"})
	_, err := p.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "404")
}
