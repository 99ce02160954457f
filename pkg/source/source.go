// Package source turns import inputs (delimited files, JSON, flashcard decks and
// the Tatoeba corpus) into a stream of raw sentence pairs.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrSourceUnavailable means the whole input is unusable: missing file,
	// unsupported format, corrupt archive or unreachable corpus.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRecordInvalid marks a single unusable record. The stream continues after it.
	ErrRecordInvalid = errors.New("invalid record")
)

// RawTuple is one sentence pair as read from a source, before validation.
type RawTuple struct {
	SourceText string
	TargetText string
	Category   string
	// Ref locates the record inside its source ("row 3", "note 1650000000").
	Ref string
}

// RecordError is returned by Stream.Next for a record that could not be read.
type RecordError struct {
	Ref string
	Err error
}

func (e *RecordError) Error() string {
	if e.Ref == "" {
		return e.Err.Error()
	}
	return e.Ref + ": " + e.Err.Error()
}

func (e *RecordError) Unwrap() []error { return []error{ErrRecordInvalid, e.Err} }

func recordErrorf(ref, format string, args ...any) *RecordError {
	return &RecordError{Ref: ref, Err: fmt.Errorf(format, args...)}
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, fmt.Sprintf(format, args...))
}

// Stream yields tuples until io.EOF. A *RecordError means that record was skipped
// and Next may be called again; any other error ends the stream.
type Stream interface {
	Next() (RawTuple, error)
	Close() error
}

// Parser opens a fresh Stream over its input on every call to Open.
// File-level problems are reported by Open wrapped in ErrSourceUnavailable,
// before any tuple is produced.
type Parser interface {
	Open(ctx context.Context) (Stream, error)
	// Provenance names the input, e.g. "file:cards.csv", "deck:core2k", "corpus:tatoeba".
	Provenance() string
}

func checkExtension(path string, allowed ...string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return unavailable("unsupported file extension %q for %s (want one of %s)", ext, filepath.Base(path), strings.Join(allowed, ", "))
}

// SliceParser serves tuples from memory. It backs the built-in sample data and tests.
type SliceParser struct {
	Name   string
	Tuples []RawTuple
}

func (p *SliceParser) Provenance() string { return p.Name }

func (p *SliceParser) Open(ctx context.Context) (Stream, error) {
	return &sliceStream{tuples: p.Tuples}, nil
}

type sliceStream struct {
	tuples []RawTuple
	i      int
}

func (s *sliceStream) Next() (RawTuple, error) {
	if s.i >= len(s.tuples) {
		return RawTuple{}, io.EOF
	}
	t := s.tuples[s.i]
	s.i++
	return t, nil
}

func (s *sliceStream) Close() error { return nil }
