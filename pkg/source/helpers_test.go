package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type drained struct {
	tuples    []RawTuple
	recordErr []error
	streamErr error
}

func drain(t *testing.T, p Parser) drained {
	t.Helper()
	s, err := p.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	var out drained
	for {
		tup, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		var re *RecordError
		if errors.As(err, &re) {
			out.recordErr = append(out.recordErr, err)
			continue
		}
		if err != nil {
			out.streamErr = err
			return out
		}
		out.tuples = append(out.tuples, tup)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
