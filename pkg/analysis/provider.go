package analysis

import (
	"github.com/japaniel/yomikomi/pkg/dictionary"
)

// Morpheme is one reading unit produced by a ReadingProvider.
type Morpheme struct {
	Surface string
	// Reading is the kana for Surface. Kana and ASCII surfaces are returned unchanged.
	Reading string
	// Particle is set for grammatical particles, which affects romanization of は, へ and を.
	Particle bool
	// Space is set for whitespace between words. It is kept in the reading
	// and dropped from romanization.
	Space bool
}

// ReadingProvider splits text into morphemes with kana readings.
// Implementations must be safe for concurrent use.
type ReadingProvider interface {
	Morphemes(text string) ([]Morpheme, error)
}

// ReadingLookup resolves a word written with kanji to a hiragana reading.
// *dictionary.Index satisfies it.
type ReadingLookup interface {
	Reading(word string) (string, bool)
}

// KagomeProvider reads text with the kagome tokenizer and falls back to a
// dictionary lookup for kanji words kagome does not know.
type KagomeProvider struct {
	tok  *Tokenizer
	dict ReadingLookup
}

// NewKagomeProvider builds a provider. dict may be nil.
func NewKagomeProvider(dict ReadingLookup) (*KagomeProvider, error) {
	tok, err := NewTokenizer()
	if err != nil {
		return nil, err
	}
	return &KagomeProvider{tok: tok, dict: dict}, nil
}

// Morphemes implements ReadingProvider.
func (p *KagomeProvider) Morphemes(text string) ([]Morpheme, error) {
	tokens := p.tok.Tokenize(text)
	out := make([]Morpheme, 0, len(tokens))
	for _, t := range tokens {
		m := Morpheme{
			Surface:  t.Surface,
			Reading:  t.Surface,
			Particle: t.POS == "助詞",
			Space:    t.Space,
		}
		if containsHan(t.Surface) {
			switch {
			case t.Reading != "":
				m.Reading = dictionary.ToHiragana(t.Reading)
			case p.dict != nil:
				if r, ok := p.dict.Reading(t.Surface); ok {
					m.Reading = r
				}
			}
		}
		out = append(out, m)
	}
	return out, nil
}
