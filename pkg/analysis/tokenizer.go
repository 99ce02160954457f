package analysis

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token is one kagome segment.
type Token struct {
	Surface string
	// Reading is katakana, empty when the dictionary has none.
	Reading string
	// POS is the top-level IPA part of speech, e.g. "名詞" or "助詞".
	POS string
	// Known is false for segments kagome guessed (tokenizer.UNKNOWN).
	Known bool
	// Space marks a run of whitespace between words.
	Space bool
}

// Tokenizer segments Japanese text with kagome and the IPA dictionary.
// A Tokenizer is safe for concurrent use.
type Tokenizer struct {
	t *tokenizer.Tokenizer
}

// NewTokenizer loads the IPA dictionary. This takes a moment and a few tens of
// megabytes, so build one Tokenizer and share it.
func NewTokenizer() (*Tokenizer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Tokenizer{t: t}, nil
}

// Tokenize splits text into tokens. The surfaces concatenate back to text;
// whitespace runs come back as Space tokens.
func (tk *Tokenizer) Tokenize(text string) []Token {
	raw := tk.t.Tokenize(text)
	out := make([]Token, 0, len(raw))
	for _, r := range raw {
		if r.Class == tokenizer.DUMMY || r.Surface == "" {
			continue
		}
		if strings.TrimSpace(r.Surface) == "" {
			out = append(out, Token{Surface: r.Surface, Space: true})
			continue
		}
		t := Token{Surface: r.Surface, Known: r.Class != tokenizer.UNKNOWN}
		if reading, ok := r.Reading(); ok && reading != "*" {
			t.Reading = reading
		}
		if pos := r.POS(); len(pos) > 0 {
			t.POS = pos[0]
		}
		out = append(out, t)
	}
	return out
}
