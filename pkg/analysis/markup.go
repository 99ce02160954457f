package analysis

import "regexp"

var (
	reRubyText  = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRubyParen = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby readings (<rt>) and their fallback parentheses
// (<rp>) from HTML. Stripping only the tags would glue the reading to the
// kanji ("漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	content = reRubyText.ReplaceAll(content, nil)
	return reRubyParen.ReplaceAll(content, nil)
}
