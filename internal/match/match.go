// Package match scores how similar two titles are.
//
// Scores are ordered by trust, not by raw overlap: an exact (case-folded)
// match beats containment, and containment beats word-set overlap even when
// the overlap would score higher for short titles.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

const (
	// DefaultThreshold is the minimum score BestMatch accepts
	DefaultThreshold = 0.6

	exactScore       = 1.0
	containmentScore = 0.8
)

// Candidate is a scored title
type Candidate struct {
	Title string
	Score float64
}

// Fold returns the case-folded, trimmed form of s used for all comparisons
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Equal reports whether a and b are the same title ignoring case
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Contains reports whether either title contains the other, ignoring case.
// Empty titles never match.
func Contains(a, b string) bool {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return false
	}
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

// Score returns the similarity of a and b in [0, 1]. Surrounding whitespace
// is significant; only empty input scores 0 outright.
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	fa, fb := cases.Fold().String(a), cases.Fold().String(b)

	if fa == fb {
		return exactScore
	}
	if strings.Contains(fa, fb) || strings.Contains(fb, fa) {
		return containmentScore
	}

	return jaccard(tokenSet(fa), tokenSet(fb))
}

// Tokens splits s into its letter and number runs, case-folded
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func tokenSet(folded string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Matcher picks the best candidate for a title
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a Matcher with the given acceptance threshold.
// A non-positive threshold uses DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold}
}

// BestMatch scans candidates in order and returns the first one with the
// highest score. The bool is false when there are no candidates or the best
// score is below the threshold; the best candidate is still returned so the
// caller can decide whether to use it.
func (m *Matcher) BestMatch(target string, candidates []string) (Candidate, bool) {
	var best Candidate
	found := false

	for _, c := range candidates {
		s := Score(target, c)
		if !found || s > best.Score {
			best = Candidate{Title: c, Score: s}
			found = true
		}
	}

	if !found {
		return Candidate{}, false
	}
	return best, best.Score >= m.threshold()
}

func (m *Matcher) threshold() float64 {
	if m == nil || m.Threshold <= 0 {
		return DefaultThreshold
	}
	return m.Threshold
}
