package match

import (
	"fmt"
	"strings"

	"github.com/crossarb/engine/internal/domain"
)

// Tier is the confidence band a classified pair falls into.
type Tier int

const (
	// TierAuto pairs may be mapped and traded without review.
	TierAuto Tier = 1
	// TierReview pairs are persisted inactive for operator judgment and must
	// not trade automatically. Inverse-phrased questions ("overturn" vs
	// "uphold") land here deliberately; keyword and token scoring cannot
	// tell them apart and no negation heuristic is attempted.
	TierReview Tier = 2
	// TierReject pairs produce no mapping.
	TierReject Tier = 3
)

// Weights are the component weights for the overall score. They are
// configuration, not constants.
type Weights struct {
	Keyword  float64
	Token    float64
	Fuzzy    float64
	Date     float64
	Category float64
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.40, Token: 0.30, Fuzzy: 0.15, Date: 0.10, Category: 0.05}
}

// Validate checks the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	sum := w.Keyword + w.Token + w.Fuzzy + w.Date + w.Category
	if w.Keyword < 0 || w.Token < 0 || w.Fuzzy < 0 || w.Date < 0 || w.Category < 0 {
		return fmt.Errorf("match: negative component weight")
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("match: component weights sum to %.4f, want 1.0", sum)
	}
	return nil
}

// Thresholds are the tier cut-offs on the overall score.
type Thresholds struct {
	AutoApprove float64 // overall >= AutoApprove -> TierAuto
	Review      float64 // overall >= Review -> TierReview
}

// DefaultThresholds returns the standard tier cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoApprove: 0.75, Review: 0.60}
}

// Validate checks threshold ordering and range.
func (t Thresholds) Validate() error {
	if t.Review <= 0 || t.AutoApprove > 1 || t.Review >= t.AutoApprove {
		return fmt.Errorf("match: thresholds must satisfy 0 < review < auto_approve <= 1, got %.2f/%.2f",
			t.Review, t.AutoApprove)
	}
	return nil
}

// MatchScore is the classifier's verdict on one candidate pair.
type MatchScore struct {
	Overall    float64
	Components ComponentScores
	Method     domain.MatchMethod
	Tier       Tier
}

// Classifier combines similarity components into an overall confidence and a
// decision tier. Classifying the same pair twice with the same configuration
// yields bit-identical output.
type Classifier struct {
	scorer     *Scorer
	weights    Weights
	thresholds Thresholds
}

// NewClassifier creates a Classifier. Weights and thresholds must already be
// validated by the caller (config validation fails fast at startup).
func NewClassifier(scorer *Scorer, weights Weights, thresholds Thresholds) *Classifier {
	return &Classifier{scorer: scorer, weights: weights, thresholds: thresholds}
}

// Classify scores a pair of questions and assigns method and tier.
func (c *Classifier) Classify(a, b domain.MarketQuestion) MatchScore {
	na, nb := Normalize(a.Title), Normalize(b.Title)
	comps := c.scorer.Score(a, b)

	if na == nb {
		return MatchScore{
			Overall:    1.0,
			Components: comps,
			Method:     domain.MatchMethodExact,
			Tier:       TierAuto,
		}
	}

	overall := c.weights.Keyword*comps.Keyword +
		c.weights.Token*comps.Token +
		c.weights.Fuzzy*comps.Fuzzy +
		c.weights.Date*comps.Date +
		c.weights.Category*comps.Category

	tier := c.tierFor(overall)
	// Opposite-outcome phrasing defeats keyword and token scoring: the two
	// titles describe the same event resolving opposite ways. A curated term
	// list demotes such pairs to manual review; the score is left untouched
	// and no negation semantics are attempted.
	if tier == TierAuto && hasOpposingPhrasing(na, nb) {
		tier = TierReview
	}

	return MatchScore{
		Overall:    overall,
		Components: comps,
		Method:     dominantMethod(c.weights, comps),
		Tier:       tier,
	}
}

// opposingPhrasePairs lists term pairs that flip a question's resolution
// direction while leaving the rest of the wording intact.
var opposingPhrasePairs = [][2]string{
	{"overturn", "uphold"},
	{"above", "below"},
	{"before", "after"},
	{"increase", "decrease"},
}

func hasOpposingPhrasing(na, nb string) bool {
	for _, p := range opposingPhrasePairs {
		if (containsWord(na, p[0]) && containsWord(nb, p[1])) ||
			(containsWord(na, p[1]) && containsWord(nb, p[0])) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	for _, t := range strings.Fields(text) {
		if t == word {
			return true
		}
	}
	return false
}

func (c *Classifier) tierFor(overall float64) Tier {
	switch {
	case overall >= c.thresholds.AutoApprove:
		return TierAuto
	case overall >= c.thresholds.Review:
		return TierReview
	default:
		return TierReject
	}
}

// dominantMethod names the non-exact method by the largest weighted
// contribution among the text components, preferring keyword over token over
// fuzzy on ties so method precedence stays deterministic.
func dominantMethod(w Weights, comps ComponentScores) domain.MatchMethod {
	kw := w.Keyword * comps.Keyword
	tk := w.Token * comps.Token
	fz := w.Fuzzy * comps.Fuzzy
	if kw >= tk && kw >= fz {
		return domain.MatchMethodKeyword
	}
	if tk >= fz {
		return domain.MatchMethodToken
	}
	return domain.MatchMethodFuzzy
}

// methodRank orders methods for best-match tie breaking: exact beats keyword
// beats token beats fuzzy.
func methodRank(m domain.MatchMethod) int {
	switch m {
	case domain.MatchMethodExact:
		return 0
	case domain.MatchMethodKeyword:
		return 1
	case domain.MatchMethodToken:
		return 2
	case domain.MatchMethodFuzzy:
		return 3
	default:
		return 4
	}
}

// BestMatch evaluates every candidate against q and returns the index and
// score of the strictly best one. Ties on overall break by method precedence,
// then by the lowest candidate index, so the selection is fully
// deterministic. ok is false when candidates is empty.
func (c *Classifier) BestMatch(q domain.MarketQuestion, candidates []domain.MarketQuestion) (idx int, score MatchScore, ok bool) {
	idx = -1
	for i, cand := range candidates {
		s := c.Classify(q, cand)
		if idx < 0 || betterScore(s, score) {
			idx, score, ok = i, s, true
		}
	}
	return idx, score, ok
}

func betterScore(a, b MatchScore) bool {
	if a.Overall != b.Overall {
		return a.Overall > b.Overall
	}
	// Equal overall: prefer the stronger method; earlier index wins otherwise
	// because BestMatch only replaces on strict improvement.
	return methodRank(a.Method) < methodRank(b.Method)
}

// PairOutcomes builds the outcome correspondence for a matched pair. Labels
// equal under case folding pair first; any remainder pairs by index order.
// An error is returned when the outcome counts differ, since such a pair can
// never satisfy the mapping invariant.
func PairOutcomes(a, b domain.MarketQuestion) ([]domain.OutcomePair, error) {
	if len(a.Outcomes) != len(b.Outcomes) {
		return nil, fmt.Errorf("match: outcome count mismatch %d vs %d: %w",
			len(a.Outcomes), len(b.Outcomes), domain.ErrInvalidMapping)
	}
	pairs := make([]domain.OutcomePair, 0, len(a.Outcomes))
	usedB := make([]bool, len(b.Outcomes))

	for _, la := range a.Outcomes {
		matched := false
		for j, lb := range b.Outcomes {
			if !usedB[j] && Normalize(la) == Normalize(lb) {
				pairs = append(pairs, domain.OutcomePair{OutcomeA: la, OutcomeB: lb})
				usedB[j] = true
				matched = true
				break
			}
		}
		if !matched {
			pairs = append(pairs, domain.OutcomePair{OutcomeA: la})
		}
	}

	// Fill unmatched A labels with remaining B labels in order.
	j := 0
	for i := range pairs {
		if pairs[i].OutcomeB != "" {
			continue
		}
		for ; j < len(usedB); j++ {
			if !usedB[j] {
				pairs[i].OutcomeB = b.Outcomes[j]
				usedB[j] = true
				break
			}
		}
	}
	return pairs, nil
}
