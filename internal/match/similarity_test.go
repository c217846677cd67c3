package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crossarb/engine/internal/domain"
)

func question(title string, resolution time.Time) domain.MarketQuestion {
	return domain.MarketQuestion{
		Title:          title,
		ResolutionTime: resolution,
		Outcomes:       []string{"Yes", "No"},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "will btc hit 100k", Normalize("Will BTC hit $100k?"))
	assert.Equal(t, "a b", Normalize("  A---b  "))
	assert.Equal(t, "", Normalize("?!"))
}

func TestTokenScore_Symmetric(t *testing.T) {
	s := NewScorer(nil)
	a := "will bitcoin reach 100000 by december"
	b := "bitcoin price above 100000 in 2024"
	assert.Equal(t, s.tokenScore(a, b), s.tokenScore(b, a))
}

func TestTokenScore_EmptySets(t *testing.T) {
	s := NewScorer(nil)
	// Only stopwords and short tokens on both sides.
	assert.Equal(t, 1.0, s.tokenScore("the of a", "an in on"))
	assert.Equal(t, 0.0, s.tokenScore("the of a", "bitcoin price"))
}

func TestTokenScore_Overlap(t *testing.T) {
	s := NewScorer(nil)
	// {alpha,beta,gamma} vs {beta,gamma,delta}: 2 shared of 4.
	assert.InDelta(t, 0.5, s.tokenScore("alpha beta gamma", "beta gamma delta"), 1e-9)
}

func TestKeywordScore_WeightedOverlap(t *testing.T) {
	s := NewScorer([]KeywordGroup{
		{Name: "bitcoin", Weight: 1.0, Synonyms: []string{"bitcoin", "btc"}},
		{Name: "price_above", Weight: 0.9, Synonyms: []string{"above", "reach"}},
		{Name: "fed", Weight: 1.0, Synonyms: []string{"federal reserve"}},
	})
	// Both mention bitcoin; only one mentions a price threshold.
	got := s.keywordScore("will bitcoin crash", "btc above 100k")
	// shared: bitcoin (1.0); union: bitcoin (1.0) + price_above (0.9).
	assert.InDelta(t, 1.0/1.9, got, 1e-9)
}

func TestKeywordScore_NoGroupsPresent(t *testing.T) {
	s := NewScorer(nil)
	assert.Equal(t, 0.0, s.keywordScore("quiet unrelated text", "another unrelated text"))
}

func TestFuzzyScore(t *testing.T) {
	assert.Equal(t, 1.0, fuzzyScore("", ""))
	assert.Equal(t, 1.0, fuzzyScore("same", "same"))
	assert.Equal(t, 0.0, fuzzyScore("abcd", "wxyz"))
	// One substitution in a 4-char string.
	assert.InDelta(t, 0.75, fuzzyScore("abcd", "abce"), 1e-9)
}

func TestDateScore_Boundaries(t *testing.T) {
	base := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, dateScore(base, base))
	assert.Equal(t, 1.0, dateScore(base, base.AddDate(0, 0, 7)))
	assert.Equal(t, 0.0, dateScore(base, base.AddDate(0, 0, 31)))

	// Linear ramp between 7 and 30 days.
	mid := dateScore(base, base.AddDate(0, 0, 20))
	assert.InDelta(t, 0.7+0.3*10.0/23.0, mid, 1e-9)
	assert.InDelta(t, 0.7, dateScore(base, base.AddDate(0, 0, 30)), 1e-9)
}

func TestDateScore_SymmetricInOrder(t *testing.T) {
	a := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	b := a.AddDate(0, 0, 12)
	assert.Equal(t, dateScore(a, b), dateScore(b, a))
}

func TestCategoryScore(t *testing.T) {
	assert.Equal(t, 0.5, categoryScore("", ""))
	assert.Equal(t, 0.5, categoryScore("Politics", ""))
	assert.Equal(t, 1.0, categoryScore("Politics", "politics"))
	assert.Equal(t, 0.0, categoryScore("Politics", "Crypto"))
}

func TestScore_Deterministic(t *testing.T) {
	s := NewScorer(nil)
	res := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	a := question("Will Bitcoin reach $100,000 in 2024?", res)
	b := question("Bitcoin price above 100000 by end of 2024", res)

	first := s.Score(a, b)
	second := s.Score(a, b)
	assert.Equal(t, first, second)
}
