// Package analysis derives reading, romanization, script composition and
// difficulty estimates from a Japanese sentence.
package analysis

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Level is a coarse proficiency tier, L1 (beginner) to L5 (advanced).
type Level int

const (
	L1 Level = iota + 1
	L2
	L3
	L4
	L5
)

func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// JLPT maps the tier to the JLPT label used for display, L1 = N5 through L5 = N1.
func (l Level) JLPT() string {
	if l < L1 || l > L5 {
		return ""
	}
	return fmt.Sprintf("N%d", 6-int(l))
}

// SentenceType is the coarse mood of a sentence.
type SentenceType string

const (
	Statement SentenceType = "statement"
	Question  SentenceType = "question"
	Command   SentenceType = "command"
)

// Result is the outcome of analyzing one sentence. Reading and Romanization are
// nil when no reading provider is configured or the provider failed.
type Result struct {
	Reading         *string
	Romanization    *string
	KanjiCount      int
	KanjiCharacters []string
	Composition     Composition
	Difficulty      int
	Level           Level
	Type            SentenceType
}

// Analyzer runs the analysis. The zero value works without readings.
type Analyzer struct {
	Provider ReadingProvider
	Logger   *slog.Logger
}

// New returns an Analyzer using provider for readings. provider may be nil.
func New(provider ReadingProvider) *Analyzer {
	return &Analyzer{Provider: provider}
}

// Analyze derives all metadata for text. It depends only on text and the provider.
func (a *Analyzer) Analyze(text string) Result {
	comp := Compose(text)
	length := utf8.RuneCountInString(text)

	res := Result{
		KanjiCount:      comp.Kanji,
		KanjiCharacters: KanjiCharacters(text),
		Composition:     comp,
		Difficulty:      Difficulty(comp.Kanji, length),
		Level:           ProficiencyLevel(comp.Kanji, length),
		Type:            ClassifySentence(text),
	}

	if a == nil || a.Provider == nil {
		return res
	}
	ms, err := a.Provider.Morphemes(text)
	if err != nil {
		a.logger().Debug("reading unavailable", slog.String("text", text), slog.Any("error", err))
		return res
	}
	var b strings.Builder
	for _, m := range ms {
		b.WriteString(m.Reading)
	}
	reading := b.String()
	romaji := RomanizeMorphemes(ms)
	if res.Type == Question && endsInWordKa(ms) {
		res.Type = Statement
	}
	res.Reading = &reading
	res.Romanization = &romaji
	return res
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func density(kanji, length int) float64 {
	if length <= 0 {
		return 0
	}
	return float64(kanji) / float64(length)
}

// densityTier maps kanji density onto 0..4.
func densityTier(d float64) int {
	switch {
	case d == 0:
		return 0
	case d <= 0.2:
		return 1
	case d <= 0.4:
		return 2
	case d <= 0.6:
		return 3
	default:
		return 4
	}
}

// Difficulty scores a sentence 1..5 from its kanji density, nudged by length:
// one step up past 50 characters, one step down under 10.
func Difficulty(kanji, length int) int {
	score := 1 + densityTier(density(kanji, length))
	switch {
	case length > 50:
		score++
	case length < 10:
		score--
	}
	return clamp(score, 1, 5)
}

// ProficiencyLevel tiers a sentence by kanji density, one tier up past 40 characters.
// Sentences without kanji are always L1.
func ProficiencyLevel(kanji, length int) Level {
	if kanji == 0 {
		return L1
	}
	tier := 1 + densityTier(density(kanji, length))
	if length > 40 {
		tier++
	}
	return Level(clamp(tier, int(L1), int(L5)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	questionEndings = []string{"かしら", "かい", "かな", "だい", "か"}
	commandEndings  = []string{"ちょうだい", "ください", "なさい", "しろ", "せよ"}
	// Common words ending in か that are not the question particle.
	kaWords = []string{
		"静か", "確か", "僅か", "豊か", "暖か", "温か", "愚か", "遥か", "細か",
		"鮮やか", "穏やか", "賑やか", "爽やか", "和やか", "健やか", "緩やか",
		"明らか", "滑らか", "柔らか", "朗らか",
		"何か", "誰か", "いつか", "どこか", "なにか", "だれか",
		"しずか", "たしか", "わずか", "ゆたか", "にぎやか", "さわやか", "おだやか", "あきらか",
	}
)

func trimEnding(text string) string {
	return strings.TrimRightFunc(text, func(r rune) bool {
		switch r {
		case '。', '.', '」', '』', '）', ')', '"', '\'', '　', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})
}

// ClassifySentence looks at the sentence ending after trailing 。 and closing brackets.
func ClassifySentence(text string) SentenceType {
	t := trimEnding(text)
	if t == "" {
		return Statement
	}
	last, _ := utf8.DecodeLastRuneInString(t)
	switch last {
	case '?', '？':
		return Question
	case '!', '！':
		return Command
	}
	for _, e := range commandEndings {
		if strings.HasSuffix(t, e) {
			return Command
		}
	}
	for _, w := range kaWords {
		if strings.HasSuffix(t, w) {
			return Statement
		}
	}
	for _, e := range questionEndings {
		if strings.HasSuffix(t, e) {
			return Question
		}
	}
	return Statement
}

// endsInWordKa reports whether the last word of ms ends in a か the
// tokenizer did not tag as a particle, as in 静か.
func endsInWordKa(ms []Morpheme) bool {
	for i := len(ms) - 1; i >= 0; i-- {
		m := ms[i]
		if m.Space || trimEnding(m.Surface) == "" {
			continue
		}
		return !m.Particle && strings.HasSuffix(m.Surface, "か")
	}
	return false
}
