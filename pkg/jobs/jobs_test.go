package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/yomikomi/pkg/analysis"
	"github.com/japaniel/yomikomi/pkg/db"
	"github.com/japaniel/yomikomi/pkg/ingest"
)

func newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	conn, err := db.Open(context.Background(), ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := db.NewStore(conn)
	orch := ingest.New(store, analysis.New(nil))
	orch.Config = ingest.Config{Workers: 2, BatchSize: 3}
	m := NewManager(orch, store, opts)
	t.Cleanup(m.Close)
	return m
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func waitDone(t *testing.T, m *Manager, id string) ingest.Summary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return sum
}

func TestSubmitCSV(t *testing.T) {
	m := newManager(t, Options{})
	path := writeFile(t, "cards.csv", "japanese,english\n猫が好きです。,I like cats.\n犬です。,It is a dog.\n")

	id, err := m.Submit(context.Background(), Request{Kind: KindCSV, Path: path})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sum := waitDone(t, m, id)
	assert.Equal(t, 2, sum.TotalProcessed)
	assert.Equal(t, 2, sum.Imported)

	job, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "file:cards.csv", job.Source)

	again, err := m.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, sum.Imported, again.Imported)
}

func TestSubmitMissingFileFails(t *testing.T) {
	m := newManager(t, Options{})
	id, err := m.Submit(context.Background(), Request{Kind: KindCSV, Path: "/nonexistent/cards.csv"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingest.ErrSourceUnavailable))

	job, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Zero(t, job.Summary.TotalProcessed)
	assert.NotEmpty(t, job.Error)
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	m := newManager(t, Options{MaxFileBytes: 16})

	_, err := m.Submit(context.Background(), Request{Kind: "spreadsheet", Path: "x.xlsx"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = m.Submit(context.Background(), Request{Kind: KindJSON})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	big := writeFile(t, "big.csv", "japanese,english\n猫が好きです。,I like cats.\n")
	_, err = m.Submit(context.Background(), Request{Kind: KindCSV, Path: big})
	assert.True(t, errors.Is(err, ingest.ErrSourceUnavailable))
}

func TestSubmitTemporaryFileIsRemoved(t *testing.T) {
	m := newManager(t, Options{})
	path := writeFile(t, "upload.json", `[{"japanese": "猫です。", "english": "Cat."}]`)

	id, err := m.Submit(context.Background(), Request{Kind: KindJSON, Path: path, Temporary: true})
	require.NoError(t, err)
	waitDone(t, m, id)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestSeedSampleAndContent(t *testing.T) {
	m := newManager(t, Options{})
	ctx := context.Background()

	id, err := m.SeedSample(ctx)
	require.NoError(t, err)
	sum := waitDone(t, m, id)
	assert.Equal(t, 10, sum.Imported)

	id, err = m.SeedSample(ctx)
	require.NoError(t, err)
	sum = waitDone(t, m, id)
	assert.Equal(t, 10, sum.Duplicates)
	assert.Zero(t, sum.Imported)

	content, err := m.ContentSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, content.Total)
	assert.Equal(t, 10, content.Active)

	sources, err := m.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, SampleProvenance, sources[0].Source)

	n, err := m.DeactivateSource(ctx, SampleProvenance)
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	content, err = m.ContentSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, content.Total)
	assert.Zero(t, content.Active)
}

func TestListAndNotFound(t *testing.T) {
	m := newManager(t, Options{})
	first, err := m.SeedSample(context.Background())
	require.NoError(t, err)
	second, err := m.SeedSample(context.Background())
	require.NoError(t, err)
	waitDone(t, m, first)
	waitDone(t, m, second)

	jobs := m.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, first, jobs[0].ID)
	assert.Equal(t, second, jobs[1].ID)

	_, err = m.Status("01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(m.Cancel("missing"), ErrNotFound))
}

func TestCancelFinishedJobIsNoop(t *testing.T) {
	m := newManager(t, Options{})
	id, err := m.SeedSample(context.Background())
	require.NoError(t, err)
	waitDone(t, m, id)

	require.NoError(t, m.Cancel(id))
	job, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
}

func TestValidate(t *testing.T) {
	m := newManager(t, Options{MaxFileBytes: 1 << 10})
	ctx := context.Background()

	csvPath := writeFile(t, "cards.csv", "japanese,english\n猫です。,Cat.\n犬です。,\n鳥です。,Bird.\n")
	v := m.Validate(ctx, Request{Kind: KindCSV, Path: csvPath})
	assert.True(t, v.Valid, v.Reason)
	assert.Equal(t, 3, v.EstimatedRecordCount)
	assert.Equal(t, ".csv", v.Extension)

	jsonPath := writeFile(t, "cards.json", `[{"japanese": "猫", "english": "cat"}, {"japanese": "犬", "english": "dog"}]`)
	v = m.Validate(ctx, Request{Kind: KindJSON, Path: jsonPath})
	assert.True(t, v.Valid, v.Reason)
	assert.Equal(t, 2, v.EstimatedRecordCount)

	v = m.Validate(ctx, Request{Kind: KindSample})
	assert.True(t, v.Valid)
	assert.Equal(t, 10, v.EstimatedRecordCount)

	v = m.Validate(ctx, Request{Kind: KindCorpus})
	assert.True(t, v.Valid)

	tests := []struct {
		name   string
		req    Request
		reason string
	}{
		{"missing", Request{Kind: KindCSV, Path: "/nonexistent/cards.csv"}, "does not exist"},
		{"empty", Request{Kind: KindCSV, Path: writeFile(t, "empty.csv", "")}, "empty"},
		{"too large", Request{Kind: KindCSV, Path: writeFile(t, "big.csv", string(make([]byte, 2<<10)))}, "too large"},
		{"bad header", Request{Kind: KindCSV, Path: writeFile(t, "other.csv", "a,b\n1,2\n")}, "lacks column"},
		{"bad extension", Request{Kind: KindJSON, Path: writeFile(t, "cards.txt", "[]")}, "extension"},
		{"broken json", Request{Kind: KindJSON, Path: writeFile(t, "broken.json", `[{"japanese": }`)}, "after 0 records"},
		{"not a deck", Request{Kind: KindDeck, Path: writeFile(t, "deck.apkg", "not a zip")}, "open deck"},
		{"unknown kind", Request{Kind: "xlsx"}, "unknown kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := m.Validate(ctx, tt.req)
			assert.False(t, v.Valid)
			assert.Contains(t, v.Reason, tt.reason)
		})
	}
}
