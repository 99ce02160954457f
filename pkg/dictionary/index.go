package dictionary

import (
	"slices"
	"unicode"
)

// Index maps kanji spellings to their entries. It is built once and only read
// afterwards, so it is safe for concurrent use.
type Index struct {
	byKanji map[string][]Entry
	entries int
}

// NewIndex builds an index over entries.
func NewIndex(entries []Entry) *Index {
	ix := &Index{byKanji: make(map[string][]Entry)}
	for _, e := range entries {
		ix.add(e)
	}
	return ix
}

func (ix *Index) add(e Entry) {
	ix.entries++
	for _, k := range e.Kanji {
		if hasHan(k.Text) {
			ix.byKanji[k.Text] = append(ix.byKanji[k.Text], e)
		}
	}
}

// Len returns the number of entries indexed.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.entries
}

// Reading returns a hiragana reading for a word written with kanji. Common kana
// spellings win over rare ones, and kana restricted to other kanji spellings
// are skipped. ok is false for unknown words and words without kanji.
func (ix *Index) Reading(word string) (string, bool) {
	if ix == nil || !hasHan(word) {
		return "", false
	}
	matches := ix.byKanji[word]
	for _, commonOnly := range []bool{true, false} {
		for _, e := range matches {
			for _, k := range e.Kana {
				if commonOnly && !k.Common {
					continue
				}
				if appliesTo(k, word) {
					return ToHiragana(k.Text), true
				}
			}
		}
	}
	return "", false
}

func appliesTo(k Spelling, word string) bool {
	return len(k.AppliesToKanji) == 0 ||
		slices.Contains(k.AppliesToKanji, "*") ||
		slices.Contains(k.AppliesToKanji, word)
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
