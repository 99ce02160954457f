package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/japaniel/yomikomi/pkg/db"
	"github.com/japaniel/yomikomi/pkg/jobs"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestCLIImportCSV(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "yomikomi.db")
	input := filepath.Join(tmp, "cards.csv")
	require.NoError(t, os.WriteFile(input, []byte("japanese,english\n猫が好きです。,I like cats.\n犬です。,It is a dog.\n,Nothing\n"), 0o644))
	reportPath := filepath.Join(tmp, "report.yaml")

	res := runCLI(t, "-db", dbPath, "-readings=false", "-kind", "file-csv", "-path", input, "-report", reportPath)
	require.Equal(t, 0, res.code, res.stderr)

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, res.stdout, string(raw))

	var rep importReport
	require.NoError(t, yaml.Unmarshal(raw, &rep))
	assert.NotEmpty(t, rep.Job)
	assert.Equal(t, jobs.KindCSV, rep.Kind)
	assert.Equal(t, 3, rep.Summary.TotalProcessed)
	assert.Equal(t, 2, rep.Summary.Imported)
	assert.Equal(t, 1, rep.Summary.Errors)
	assert.Equal(t, "file:cards.csv", rep.Summary.Source)

	// A second run finds everything already stored.
	res = runCLI(t, "-db", dbPath, "-readings=false", "-kind", "file-csv", "-path", input)
	require.Equal(t, 0, res.code, res.stderr)
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &rep))
	assert.Equal(t, 2, rep.Summary.Duplicates)
	assert.Zero(t, rep.Summary.Imported)
}

func TestCLISeedAndSummary(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "yomikomi.db")

	res := runCLI(t, "-db", dbPath, "-readings=false", "-seed")
	require.Equal(t, 0, res.code, res.stderr)

	res = runCLI(t, "-db", dbPath, "-summary")
	require.Equal(t, 0, res.code, res.stderr)
	var out struct {
		Content db.ContentSummary `yaml:"content"`
		Sources []db.SourceCount  `yaml:"sources"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, 10, out.Content.Total)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, jobs.SampleProvenance, out.Sources[0].Source)

	res = runCLI(t, "-db", dbPath, "-deactivate", jobs.SampleProvenance)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Deactivated 10 sentences")
}

func TestCLIValidate(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "yomikomi.db")
	input := filepath.Join(tmp, "cards.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"japanese": "猫です。", "english": "Cat."}]`), 0o644))

	res := runCLI(t, "-db", dbPath, "-validate", "-kind", "file-json", "-path", input)
	require.Equal(t, 0, res.code, res.stderr)
	var v jobs.Validation
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &v))
	assert.True(t, v.Valid)
	assert.Equal(t, 1, v.EstimatedRecordCount)

	res = runCLI(t, "-db", dbPath, "-validate", "-kind", "file-json", "-path", filepath.Join(tmp, "missing.json"))
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "does not exist")
}

func TestCLIErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "yomikomi.db")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"nothing to do", []string{"-db", dbPath}, 2},
		{"bad flag", []string{"-no-such-flag"}, 2},
		{"unknown kind", []string{"-db", dbPath, "-readings=false", "-kind", "xlsx"}, 2},
		{"missing input", []string{"-db", dbPath, "-readings=false", "-kind", "file-csv", "-path", "/nonexistent/cards.csv"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, tt.args...)
			assert.Equal(t, tt.code, res.code, res.stderr)
		})
	}
}
