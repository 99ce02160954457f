package analysis

import (
	"strings"

	"github.com/japaniel/yomikomi/pkg/dictionary"
)

var hepburnDigraphs = map[string]string{
	"きゃ": "kya", "きゅ": "kyu", "きょ": "kyo",
	"しゃ": "sha", "しゅ": "shu", "しょ": "sho", "しぇ": "she",
	"ちゃ": "cha", "ちゅ": "chu", "ちょ": "cho", "ちぇ": "che",
	"にゃ": "nya", "にゅ": "nyu", "にょ": "nyo",
	"ひゃ": "hya", "ひゅ": "hyu", "ひょ": "hyo",
	"みゃ": "mya", "みゅ": "myu", "みょ": "myo",
	"りゃ": "rya", "りゅ": "ryu", "りょ": "ryo",
	"ぎゃ": "gya", "ぎゅ": "gyu", "ぎょ": "gyo",
	"じゃ": "ja", "じゅ": "ju", "じょ": "jo", "じぇ": "je",
	"ぢゃ": "ja", "ぢゅ": "ju", "ぢょ": "jo",
	"びゃ": "bya", "びゅ": "byu", "びょ": "byo",
	"ぴゃ": "pya", "ぴゅ": "pyu", "ぴょ": "pyo",
	"ふぁ": "fa", "ふぃ": "fi", "ふぇ": "fe", "ふぉ": "fo",
	"てぃ": "ti", "でぃ": "di", "とぅ": "tu", "どぅ": "du",
	"うぃ": "wi", "うぇ": "we", "うぉ": "wo",
	"ゔぁ": "va", "ゔぃ": "vi", "ゔぇ": "ve", "ゔぉ": "vo",
}

var hepburnMonographs = map[rune]string{
	'あ': "a", 'い': "i", 'う': "u", 'え': "e", 'お': "o",
	'か': "ka", 'き': "ki", 'く': "ku", 'け': "ke", 'こ': "ko",
	'さ': "sa", 'し': "shi", 'す': "su", 'せ': "se", 'そ': "so",
	'た': "ta", 'ち': "chi", 'つ': "tsu", 'て': "te", 'と': "to",
	'な': "na", 'に': "ni", 'ぬ': "nu", 'ね': "ne", 'の': "no",
	'は': "ha", 'ひ': "hi", 'ふ': "fu", 'へ': "he", 'ほ': "ho",
	'ま': "ma", 'み': "mi", 'む': "mu", 'め': "me", 'も': "mo",
	'や': "ya", 'ゆ': "yu", 'よ': "yo",
	'ら': "ra", 'り': "ri", 'る': "ru", 'れ': "re", 'ろ': "ro",
	'わ': "wa", 'ゐ': "i", 'ゑ': "e", 'を': "o", 'ん': "n",
	'が': "ga", 'ぎ': "gi", 'ぐ': "gu", 'げ': "ge", 'ご': "go",
	'ざ': "za", 'じ': "ji", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'だ': "da", 'ぢ': "ji", 'づ': "zu", 'で': "de", 'ど': "do",
	'ば': "ba", 'び': "bi", 'ぶ': "bu", 'べ': "be", 'ぼ': "bo",
	'ぱ': "pa", 'ぴ': "pi", 'ぷ': "pu", 'ぺ': "pe", 'ぽ': "po",
	'ゔ': "vu",
	'ぁ': "a", 'ぃ': "i", 'ぅ': "u", 'ぇ': "e", 'ぉ': "o",
	'ゃ': "ya", 'ゅ': "yu", 'ょ': "yo", 'ゎ': "wa", 'ゕ': "ka", 'ゖ': "ke",
	'。': ".", '、': ",", '？': "?", '！': "!", '「': "\"", '」': "\"",
	'『': "\"", '』': "\"", '・': " ", '　': " ", '～': "~",
}

var macrons = map[rune]rune{'a': 'ā', 'i': 'ī', 'u': 'ū', 'e': 'ē', 'o': 'ō'}

var longVowels = strings.NewReplacer("ou", "ō", "oo", "ō", "uu", "ū", "aa", "ā", "ee", "ē")

// Romanize transliterates kana to Hepburn romaji. Katakana is folded to
// hiragana first; characters without a mapping pass through unchanged.
// Long vowels are marked only within romaji produced from kana.
func Romanize(kana string) string {
	rs := []rune(dictionary.ToHiragana(kana))
	var out strings.Builder
	// seg holds romaji converted since the last pass-through character.
	seg := make([]rune, 0, len(rs)*2)
	flush := func() {
		out.WriteString(longVowels.Replace(string(seg)))
		seg = seg[:0]
	}
	geminate := false

	for i := 0; i < len(rs); {
		r := rs[i]
		if r == 'っ' {
			geminate = true
			i++
			continue
		}
		if r == 'ー' && len(seg) > 0 {
			lengthenLast(seg)
			i++
			continue
		}

		syl, n := "", 0
		if i+1 < len(rs) {
			if v, ok := hepburnDigraphs[string(rs[i:i+2])]; ok {
				syl, n = v, 2
			}
		}
		if n == 0 {
			if v, ok := hepburnMonographs[r]; ok {
				syl, n = v, 1
			}
		}
		if n == 0 {
			geminate = false
			flush()
			out.WriteRune(r)
			i++
			continue
		}

		if geminate {
			geminate = false
			switch {
			case strings.HasPrefix(syl, "ch"):
				seg = append(seg, 't')
			case isConsonant(syl[0]):
				seg = append(seg, rune(syl[0]))
			}
		}
		seg = append(seg, []rune(syl)...)
		i += n

		// ん before a vowel or y is written n' (kin'en, shin'ya).
		if r == 'ん' && i < len(rs) {
			if next := nextRomaji(rs[i:]); next != 0 && strings.ContainsRune("aiueoy", rune(next)) {
				seg = append(seg, '\'')
			}
		}
	}
	flush()
	return out.String()
}

func nextRomaji(rs []rune) byte {
	if len(rs) >= 2 {
		if v, ok := hepburnDigraphs[string(rs[:2])]; ok {
			return v[0]
		}
	}
	if v, ok := hepburnMonographs[rs[0]]; ok && v != "" {
		return v[0]
	}
	return 0
}

func lengthenLast(out []rune) {
	if len(out) == 0 {
		return
	}
	if m, ok := macrons[out[len(out)-1]]; ok {
		out[len(out)-1] = m
	}
}

func isConsonant(b byte) bool {
	return b >= 'a' && b <= 'z' && !strings.ContainsRune("aiueon", rune(b))
}

// RomanizeMorphemes romanizes each morpheme reading and joins them with spaces.
// Particles は, へ and を are read wa, e and o. Punctuation attaches to the preceding word.
func RomanizeMorphemes(ms []Morpheme) string {
	var b strings.Builder
	for _, m := range ms {
		var r string
		switch {
		case m.Space:
			continue
		case m.Particle && m.Surface == "は":
			r = "wa"
		case m.Particle && m.Surface == "へ":
			r = "e"
		case m.Particle && m.Surface == "を":
			r = "o"
		default:
			r = strings.TrimSpace(Romanize(m.Reading))
		}
		if r == "" {
			continue
		}
		if b.Len() > 0 && !isPunctuation(r) {
			b.WriteByte(' ')
		}
		b.WriteString(r)
	}
	return b.String()
}

func isPunctuation(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(".,?!~", r) {
			return false
		}
	}
	return true
}
