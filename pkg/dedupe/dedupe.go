// Package dedupe decides whether a sentence is already known.
//
// Detection is best effort: two concurrent imports can both see a fingerprint
// as new. The unique index on sentences.fingerprint is the final guard, and the
// importer counts a rejected insert as a duplicate.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// Normalize returns the canonical form used for fingerprinting: full-width
// Latin and half-width katakana folded to their usual width, whitespace
// (including U+3000) collapsed to single spaces, and non-Japanese runs
// case-folded. Kana and kanji are left as they are.
func Normalize(text string) string {
	fields := strings.Fields(width.Fold.String(text))
	// A Caser is stateful, so each call gets its own.
	folder := cases.Fold()
	for i, f := range fields {
		fields[i] = foldLatin(folder, f)
	}
	return strings.Join(fields, " ")
}

// foldLatin case-folds the runs of s that contain no Japanese script.
func foldLatin(folder cases.Caser, s string) string {
	if !hasJapanese(s) {
		return folder.String(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	start := 0
	japanese := false
	flush := func(end int) {
		if start == end {
			return
		}
		if japanese {
			b.WriteString(s[start:end])
		} else {
			b.WriteString(folder.String(s[start:end]))
		}
		start = end
	}
	for i, r := range s {
		if j := isJapanese(r); j != japanese {
			flush(i)
			japanese = j
		}
	}
	flush(len(s))
	return b.String()
}

// Fingerprint is the hex SHA-256 of the normalized text. It is a pure function
// of its input, so two texts that normalize equally are duplicates.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

func hasJapanese(s string) bool {
	return strings.IndexFunc(s, isJapanese) >= 0
}

func isJapanese(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana)
}

// LookupFunc reports whether a fingerprint is already persisted.
type LookupFunc func(ctx context.Context, fingerprint string) (bool, error)

// Detector answers duplicate queries through an injected lookup; it never
// touches storage itself.
type Detector struct {
	Lookup LookupFunc
	Logger *slog.Logger
}

// NewDetector returns a Detector. A nil lookup means nothing is known yet.
func NewDetector(lookup LookupFunc, logger *slog.Logger) *Detector {
	return &Detector{Lookup: lookup, Logger: logger}
}

// IsDuplicate reports whether fingerprint is already stored. Lookup failures
// are logged and treated as "not a duplicate".
func (d *Detector) IsDuplicate(ctx context.Context, fingerprint string) bool {
	if d == nil || d.Lookup == nil {
		return false
	}
	found, err := d.Lookup(ctx, fingerprint)
	if err != nil {
		d.logger().Warn("duplicate lookup failed", slog.String("fingerprint", fingerprint), slog.Any("error", err))
		return false
	}
	return found
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
