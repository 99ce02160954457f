package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/japaniel/yomikomi/pkg/source"
)

// Validation is the result of a dry run over a request's input.
type Validation struct {
	Valid                bool   `json:"valid" yaml:"valid"`
	FileSize             int64  `json:"fileSize,omitempty" yaml:"file_size,omitempty"`
	Extension            string `json:"extension,omitempty" yaml:"extension,omitempty"`
	EstimatedRecordCount int    `json:"estimatedRecordCount" yaml:"estimated_record_count"`
	Reason               string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func invalid(format string, args ...any) Validation {
	return Validation{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that req could be imported and estimates how many records
// it holds. Nothing is written.
func (m *Manager) Validate(ctx context.Context, req Request) Validation {
	p, err := m.parser(req)
	if err != nil {
		return invalid("%v", err)
	}

	switch req.Kind {
	case KindSample:
		return Validation{Valid: true, EstimatedRecordCount: len(sampleTuples)}
	case KindCorpus:
		return m.validateCorpus(p.(*source.CorpusParser))
	}

	fi, err := os.Stat(req.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return invalid("file does not exist")
	case err != nil:
		return invalid("stat file: %v", err)
	case fi.IsDir():
		return invalid("path is a directory")
	case fi.Size() == 0:
		return invalid("file is empty")
	case fi.Size() > m.opts.MaxFileBytes:
		return invalid("file too large (max %d bytes)", m.opts.MaxFileBytes)
	}
	v := Validation{FileSize: fi.Size(), Extension: strings.ToLower(filepath.Ext(req.Path))}

	var n int
	if dp, ok := p.(*source.DeckParser); ok {
		n, err = dp.CountNotes(ctx)
	} else {
		n, err = countRecords(ctx, p)
	}
	if err != nil {
		v.Reason = err.Error()
		return v
	}
	v.Valid = true
	v.EstimatedRecordCount = n
	return v
}

// countRecords reads the whole stream, counting every record including
// invalid ones. A stream failure makes the input invalid.
func countRecords(ctx context.Context, p source.Parser) (int, error) {
	s, err := p.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		_, err := s.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		var re *source.RecordError
		if err != nil && !errors.As(err, &re) {
			return n, fmt.Errorf("after %d records: %w", n, err)
		}
		n++
	}
}

func (m *Manager) validateCorpus(p *source.CorpusParser) Validation {
	for _, path := range p.CachePaths() {
		if _, err := os.Stat(path); err != nil {
			return Validation{
				Valid:                true,
				EstimatedRecordCount: p.Config.MaxSentences,
				Reason:               "corpus is not cached and will be downloaded",
			}
		}
	}
	return Validation{Valid: true, EstimatedRecordCount: p.Config.MaxSentences}
}
