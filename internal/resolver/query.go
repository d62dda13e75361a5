package resolver

import (
	"strings"
	"unicode"
)

const maxQueryTokens = 3

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "in": {}, "on": {}, "at": {}, "my": {}, "your": {},
	"was": {}, "is": {}, "are": {}, "to": {}, "for": {}, "of": {}, "with": {},
}

// isScriptRune reports whether r is Hiragana, Katakana or a CJK ideograph
func isScriptRune(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) ||
		(r >= 0x30A0 && r <= 0x30FF) ||
		(r >= 0x4E00 && r <= 0x9FFF)
}

func keepRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) ||
		r == '_' || r == '-' || unicode.IsSpace(r) || isScriptRune(r)
}

// CleanQuery prepares a title for the secondary catalog search. Punctuation
// is dropped, and titles longer than three words are cut down to three
// script-bearing words when there are any, otherwise to the first three
// words that are not stop words.
func CleanQuery(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(title))

	words := strings.Fields(cleaned)
	if len(words) <= maxQueryTokens {
		return strings.Join(words, " ")
	}

	var script []string
	for _, w := range words {
		if strings.IndexFunc(w, isScriptRune) >= 0 {
			script = append(script, w)
		}
	}
	if len(script) > 0 {
		return strings.Join(firstN(script, maxQueryTokens), " ")
	}

	var meaningful []string
	for _, w := range words {
		if _, stop := stopWords[strings.ToLower(w)]; !stop {
			meaningful = append(meaningful, w)
		}
	}
	if len(meaningful) == 0 {
		meaningful = words
	}
	return strings.Join(firstN(meaningful, maxQueryTokens), " ")
}

func firstN(words []string, n int) []string {
	if len(words) > n {
		return words[:n]
	}
	return words
}
