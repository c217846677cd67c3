// Package match implements cross-venue question matching: multi-method
// similarity scoring and confidence-tiered classification.
package match

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/crossarb/engine/internal/domain"
)

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases a title, replaces non-alphanumeric runs with single
// spaces, and trims. Two questions whose normalized titles are equal are
// treated as the same event.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWord.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ComponentScores holds the individual similarity components, each in [0,1].
type ComponentScores struct {
	Keyword  float64
	Token    float64
	Fuzzy    float64
	Date     float64
	Category float64
}

// Scorer computes similarity components between two market questions. It is
// pure and deterministic: no I/O, no randomness, no wall-clock reads.
type Scorer struct {
	groups    []KeywordGroup
	stopwords map[string]bool
}

// NewScorer creates a Scorer over the given concept groups. Passing nil uses
// DefaultKeywordGroups.
func NewScorer(groups []KeywordGroup) *Scorer {
	if groups == nil {
		groups = DefaultKeywordGroups()
	}
	return &Scorer{groups: groups, stopwords: defaultStopwords}
}

// Score computes all similarity components for the pair.
func (s *Scorer) Score(a, b domain.MarketQuestion) ComponentScores {
	na, nb := Normalize(a.Title), Normalize(b.Title)
	return ComponentScores{
		Keyword:  s.keywordScore(na, nb),
		Token:    s.tokenScore(na, nb),
		Fuzzy:    fuzzyScore(na, nb),
		Date:     dateScore(a.ResolutionTime, b.ResolutionTime),
		Category: categoryScore(a.Category, b.Category),
	}
}

// keywordScore marks each concept group present in a text when any synonym is
// a substring of the normalized title. The score is the weighted overlap:
// sum of min weights over groups present in both, divided by sum of max
// weights over groups present in either.
func (s *Scorer) keywordScore(na, nb string) float64 {
	var shared, union float64
	for _, g := range s.groups {
		inA := containsAny(na, g.Synonyms)
		inB := containsAny(nb, g.Synonyms)
		switch {
		case inA && inB:
			shared += g.Weight
			union += g.Weight
		case inA || inB:
			union += g.Weight
		}
	}
	if union == 0 {
		return 0
	}
	return shared / union
}

func containsAny(text string, synonyms []string) bool {
	for _, syn := range synonyms {
		if strings.Contains(text, strings.ToLower(syn)) {
			return true
		}
	}
	return false
}

// tokenScore is the Jaccard similarity of the stopword-filtered token sets.
// Both sets empty scores 1.0; exactly one empty scores 0.
func (s *Scorer) tokenScore(na, nb string) float64 {
	ta := s.tokenize(na)
	tb := s.tokenize(nb)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var inter, union int
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union = len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func (s *Scorer) tokenize(normalized string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Fields(normalized) {
		if len(t) <= 2 || s.stopwords[t] {
			continue
		}
		out[t] = true
	}
	return out
}

// fuzzyScore is the normalized edit-distance similarity:
// (maxLen - levenshtein) / maxLen, with 1.0 when both strings are empty.
func fuzzyScore(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}
	return float64(maxLen-levenshtein(ra, rb)) / float64(maxLen)
}

// levenshtein is the classic two-row dynamic program over runes.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// dateScore maps the absolute resolution-date difference to [0,1]: 1.0 within
// seven days, 0 beyond thirty, and a linear ramp from 1.0 down to 0.7 in
// between.
func dateScore(a, b time.Time) float64 {
	if a.IsZero() || b.IsZero() {
		return 0.7 // unknown dates are treated as weakly compatible
	}
	diffDays := math.Abs(a.Sub(b).Hours()) / 24
	switch {
	case diffDays <= 7:
		return 1.0
	case diffDays > 30:
		return 0
	default:
		return 0.7 + 0.3*(30-diffDays)/23
	}
}

// categoryScore is a neutral 0.5 unless both categories are present; equal
// categories score 1.0 and a known mismatch scores 0. The detection path must
// not hard-fail on mismatch alone, so 0 here only drags the weighted sum.
func categoryScore(a, b string) float64 {
	ca := strings.ToLower(strings.TrimSpace(a))
	cb := strings.ToLower(strings.TrimSpace(b))
	if ca == "" || cb == "" {
		return 0.5
	}
	if ca == cb {
		return 1.0
	}
	return 0
}
