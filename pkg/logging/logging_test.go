package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/yomikomi/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "parseLevel(%q)", in)
	}
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, config.LogConfig{Level: "warn", Format: "json"})

	log.Info("hidden")
	log.Warn("batch failed", slog.Int("records", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "batch failed", entry["msg"])
	assert.Equal(t, float64(3), entry["records"])
}

func TestNewWriterText(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, config.LogConfig{Level: "info", Format: "text"})
	log.Info("import finished", slog.String("source", "file:cards.csv"))
	assert.Contains(t, buf.String(), `msg="import finished"`)
	assert.Contains(t, buf.String(), "source=file:cards.csv")
}
