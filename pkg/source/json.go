package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// JSONConfig lists the accepted key spellings for each field. Empty lists use
// the defaults (japanese/Japanese, english/English, category/Category).
type JSONConfig struct {
	SourceKeys   []string `json:"sourceKeys,omitempty" yaml:"source_keys"`
	TargetKeys   []string `json:"targetKeys,omitempty" yaml:"target_keys"`
	CategoryKeys []string `json:"categoryKeys,omitempty" yaml:"category_keys"`
}

func (c JSONConfig) withDefaults() JSONConfig {
	if len(c.SourceKeys) == 0 {
		c.SourceKeys = []string{"japanese", "Japanese"}
	}
	if len(c.TargetKeys) == 0 {
		c.TargetKeys = []string{"english", "English"}
	}
	if len(c.CategoryKeys) == 0 {
		c.CategoryKeys = []string{"category", "Category"}
	}
	return c
}

// JSONParser reads a top-level array of objects, a single object, or a
// sequence of concatenated objects (JSON lines).
type JSONParser struct {
	Path   string
	Config JSONConfig
}

// NewJSONParser returns a parser for path.
func NewJSONParser(path string, cfg JSONConfig) *JSONParser {
	return &JSONParser{Path: path, Config: cfg}
}

func (p *JSONParser) Provenance() string { return "file:" + filepath.Base(p.Path) }

func (p *JSONParser) Open(ctx context.Context) (Stream, error) {
	if err := checkExtension(p.Path, ".json", ".jsonl", ".ndjson"); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, unavailable("open %s: %v", p.Path, err)
	}
	br := bufio.NewReader(f)
	skipBOM(br)

	first, err := peekNonSpace(br)
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, unavailable("%s is empty", filepath.Base(p.Path))
		}
		return nil, unavailable("read %s: %v", filepath.Base(p.Path), err)
	}

	s := &jsonStream{f: f, dec: json.NewDecoder(br), cfg: p.Config.withDefaults()}
	switch first {
	case '[':
		if _, err := s.dec.Token(); err != nil {
			f.Close()
			return nil, unavailable("%s: %v", filepath.Base(p.Path), err)
		}
		s.array = true
	case '{':
	default:
		f.Close()
		return nil, unavailable("%s: top level must be an array or object, found %q", filepath.Base(p.Path), first)
	}
	return s, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

type jsonStream struct {
	f     *os.File
	dec   *json.Decoder
	cfg   JSONConfig
	array bool
	n     int
	done  bool
}

func (s *jsonStream) Next() (RawTuple, error) {
	if s.done {
		return RawTuple{}, io.EOF
	}
	if s.array && !s.dec.More() {
		s.done = true
		if _, err := s.dec.Token(); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return RawTuple{}, fmt.Errorf("after item %d: unterminated array: %w", s.n, err)
		}
		return RawTuple{}, io.EOF
	}

	var raw json.RawMessage
	if err := s.dec.Decode(&raw); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) && !s.array {
			return RawTuple{}, io.EOF
		}
		// The decoder cannot resynchronize after a syntax error.
		return RawTuple{}, fmt.Errorf("item %d: %w", s.n+1, err)
	}
	s.n++
	return s.tuple(raw)
}

func (s *jsonStream) tuple(raw json.RawMessage) (RawTuple, error) {
	ref := fmt.Sprintf("item %d", s.n)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return RawTuple{}, recordErrorf(ref, "expected an object")
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return RawTuple{}, recordErrorf(ref, "%v", err)
	}

	src, err := pick(obj, s.cfg.SourceKeys)
	if err != nil {
		return RawTuple{}, recordErrorf(ref, "%v", err)
	}
	tgt, err := pick(obj, s.cfg.TargetKeys)
	if err != nil {
		return RawTuple{}, recordErrorf(ref, "%v", err)
	}
	cat, _ := pick(obj, s.cfg.CategoryKeys)

	if src == "" {
		return RawTuple{}, recordErrorf(ref, "missing %s", s.cfg.SourceKeys[0])
	}
	if tgt == "" {
		return RawTuple{}, recordErrorf(ref, "missing %s", s.cfg.TargetKeys[0])
	}
	return RawTuple{SourceText: src, TargetText: tgt, Category: cat, Ref: ref}, nil
}

// pick returns the trimmed string under the first present key.
func pick(obj map[string]any, keys []string) (string, error) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field %q is not a string", k)
		}
		return strings.TrimSpace(str), nil
	}
	return "", nil
}

func (s *jsonStream) Close() error { return s.f.Close() }
