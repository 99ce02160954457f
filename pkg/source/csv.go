package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CSVConfig maps header names to tuple fields. Header matching ignores case
// and surrounding whitespace.
type CSVConfig struct {
	SourceColumn   string `json:"sourceColumn" yaml:"source_column"`
	TargetColumn   string `json:"targetColumn" yaml:"target_column"`
	CategoryColumn string `json:"categoryColumn,omitempty" yaml:"category_column"`
	// Delimiter defaults to a tab for .tsv files and a comma otherwise.
	Delimiter rune `json:"-" yaml:"-"`
}

func (c CSVConfig) withDefaults(path string) CSVConfig {
	if c.SourceColumn == "" {
		c.SourceColumn = "japanese"
	}
	if c.TargetColumn == "" {
		c.TargetColumn = "english"
	}
	if c.Delimiter == 0 {
		c.Delimiter = ','
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			c.Delimiter = '\t'
		}
	}
	return c
}

// CSVParser reads a delimited file with a header row.
type CSVParser struct {
	Path   string
	Config CSVConfig
}

// NewCSVParser returns a parser for path.
func NewCSVParser(path string, cfg CSVConfig) *CSVParser {
	return &CSVParser{Path: path, Config: cfg}
}

func (p *CSVParser) Provenance() string { return "file:" + filepath.Base(p.Path) }

// Open checks the file and header. A header without the mapped source or target
// column is a file-level error.
func (p *CSVParser) Open(ctx context.Context) (Stream, error) {
	if err := checkExtension(p.Path, ".csv", ".tsv", ".txt"); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, unavailable("open %s: %v", p.Path, err)
	}

	cfg := p.Config.withDefaults(p.Path)
	br := bufio.NewReader(f)
	skipBOM(br)

	r := csv.NewReader(br)
	r.Comma = cfg.Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, unavailable("%s is empty", filepath.Base(p.Path))
		}
		return nil, unavailable("read header of %s: %v", filepath.Base(p.Path), err)
	}

	s := &csvStream{f: f, r: r, src: -1, tgt: -1, cat: -1}
	for i, h := range header {
		switch name := strings.TrimSpace(h); {
		case strings.EqualFold(name, cfg.SourceColumn):
			s.src = i
		case strings.EqualFold(name, cfg.TargetColumn):
			s.tgt = i
		case cfg.CategoryColumn != "" && strings.EqualFold(name, cfg.CategoryColumn):
			s.cat = i
		}
	}
	if s.src < 0 || s.tgt < 0 {
		f.Close()
		return nil, unavailable("%s: header %q lacks column %q or %q",
			filepath.Base(p.Path), strings.Join(header, string(cfg.Delimiter)), cfg.SourceColumn, cfg.TargetColumn)
	}
	s.srcName, s.tgtName = cfg.SourceColumn, cfg.TargetColumn
	return s, nil
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(br *bufio.Reader) {
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
}

type csvStream struct {
	f                *os.File
	r                *csv.Reader
	src, tgt, cat    int
	srcName, tgtName string
}

func (s *csvStream) Next() (RawTuple, error) {
	rec, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return RawTuple{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return RawTuple{}, recordErrorf(fmt.Sprintf("row %d", pe.StartLine), "%v", pe.Err)
		}
		return RawTuple{}, err
	}

	line, _ := s.r.FieldPos(0)
	ref := fmt.Sprintf("row %d", line)
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	t := RawTuple{
		SourceText: field(s.src),
		TargetText: field(s.tgt),
		Category:   field(s.cat),
		Ref:        ref,
	}
	if t.SourceText == "" {
		return RawTuple{}, recordErrorf(ref, "missing value for column %q", s.srcName)
	}
	if t.TargetText == "" {
		return RawTuple{}, recordErrorf(ref, "missing value for column %q", s.tgtName)
	}
	return t, nil
}

func (s *csvStream) Close() error { return s.f.Close() }
