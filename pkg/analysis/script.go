package analysis

import "unicode"

// Composition counts characters per script class. Every rune of the input
// lands in exactly one bucket, so the fields sum to the rune count.
type Composition struct {
	Kanji    int `json:"kanji" yaml:"kanji"`
	Hiragana int `json:"hiragana" yaml:"hiragana"`
	Katakana int `json:"katakana" yaml:"katakana"`
	ASCII    int `json:"ascii" yaml:"ascii"`
	Other    int `json:"other" yaml:"other"`
}

// Total returns the number of classified characters.
func (c Composition) Total() int {
	return c.Kanji + c.Hiragana + c.Katakana + c.ASCII + c.Other
}

func isKanji(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

func isHiragana(r rune) bool {
	return r >= 0x3040 && r <= 0x309F
}

func isKatakana(r rune) bool {
	return (r >= 0x30A0 && r <= 0x30FF) || // katakana block, includes ー
		(r >= 0x31F0 && r <= 0x31FF) || // phonetic extensions
		(r >= 0xFF66 && r <= 0xFF9F) // half-width
}

// IsJapanese reports whether r is kana or kanji.
func IsJapanese(r rune) bool {
	return isKanji(r) || isHiragana(r) || isKatakana(r)
}

// ContainsJapanese reports whether s has at least one kana or kanji character.
func ContainsJapanese(s string) bool {
	for _, r := range s {
		if IsJapanese(r) {
			return true
		}
	}
	return false
}

func containsHan(s string) bool {
	for _, r := range s {
		if isKanji(r) {
			return true
		}
	}
	return false
}

// Compose classifies every rune of s.
func Compose(s string) Composition {
	var c Composition
	for _, r := range s {
		switch {
		case isKanji(r):
			c.Kanji++
		case isHiragana(r):
			c.Hiragana++
		case isKatakana(r):
			c.Katakana++
		case r < 0x80:
			c.ASCII++
		default:
			c.Other++
		}
	}
	return c
}

// KanjiCharacters returns the distinct kanji of s in first-seen order.
func KanjiCharacters(s string) []string {
	seen := make(map[rune]struct{})
	var out []string
	for _, r := range s {
		if !isKanji(r) {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, string(r))
	}
	return out
}
