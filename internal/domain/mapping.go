package domain

import (
	"fmt"
	"strings"
	"time"
)

// MatchMethod records how an event mapping was established.
type MatchMethod string

const (
	MatchMethodExact   MatchMethod = "exact"
	MatchMethodKeyword MatchMethod = "keyword"
	MatchMethodToken   MatchMethod = "token"
	MatchMethodFuzzy   MatchMethod = "fuzzy"
	MatchMethodManual  MatchMethod = "manual"
)

// OutcomePair pairs one outcome label on venue A with its counterpart on
// venue B, e.g. "Yes" on Kalshi with "yes" on Polymarket.
type OutcomePair struct {
	OutcomeA string
	OutcomeB string
}

// EventMapping links one question on venue A to one on venue B. At most one
// active mapping may exist per venue-A question.
type EventMapping struct {
	ID         string
	QuestionA  string // venue A question ID
	QuestionB  string // venue B question ID
	Confidence float64
	Method     MatchMethod
	Outcomes   []OutcomePair
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks the mapping's internal invariants: confidence in [0,1],
// both question IDs set, and an outcome correspondence with no duplicate
// labels on either side. Mappings failing Validate must never reach the
// execution path.
func (m EventMapping) Validate() error {
	if m.QuestionA == "" || m.QuestionB == "" {
		return fmt.Errorf("%w: missing question id", ErrInvalidMapping)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.4f out of range", ErrInvalidMapping, m.Confidence)
	}
	if len(m.Outcomes) == 0 {
		return fmt.Errorf("%w: empty outcome correspondence", ErrInvalidMapping)
	}
	seenA := make(map[string]bool, len(m.Outcomes))
	seenB := make(map[string]bool, len(m.Outcomes))
	for _, p := range m.Outcomes {
		a := strings.ToLower(strings.TrimSpace(p.OutcomeA))
		b := strings.ToLower(strings.TrimSpace(p.OutcomeB))
		if a == "" || b == "" {
			return fmt.Errorf("%w: blank outcome label", ErrInvalidMapping)
		}
		if seenA[a] || seenB[b] {
			return fmt.Errorf("%w: duplicate outcome label in correspondence", ErrInvalidMapping)
		}
		seenA[a] = true
		seenB[b] = true
	}
	return nil
}

// ValidateAgainst checks that the correspondence covers every outcome of both
// questions exactly once.
func (m EventMapping) ValidateAgainst(outcomesA, outcomesB []string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(m.Outcomes) != len(outcomesA) || len(m.Outcomes) != len(outcomesB) {
		return fmt.Errorf("%w: correspondence covers %d pairs, questions have %d/%d outcomes",
			ErrInvalidMapping, len(m.Outcomes), len(outcomesA), len(outcomesB))
	}
	for _, label := range outcomesA {
		if !m.hasOutcomeA(label) {
			return fmt.Errorf("%w: outcome %q on venue A not covered", ErrInvalidMapping, label)
		}
	}
	for _, label := range outcomesB {
		if !m.hasOutcomeB(label) {
			return fmt.Errorf("%w: outcome %q on venue B not covered", ErrInvalidMapping, label)
		}
	}
	return nil
}

// OutcomeFor returns the venue-B outcome label paired with the given venue-A
// label, matched case-insensitively.
func (m EventMapping) OutcomeFor(outcomeA string) (string, bool) {
	for _, p := range m.Outcomes {
		if strings.EqualFold(p.OutcomeA, outcomeA) {
			return p.OutcomeB, true
		}
	}
	return "", false
}

func (m EventMapping) hasOutcomeA(label string) bool {
	for _, p := range m.Outcomes {
		if strings.EqualFold(p.OutcomeA, label) {
			return true
		}
	}
	return false
}

func (m EventMapping) hasOutcomeB(label string) bool {
	for _, p := range m.Outcomes {
		if strings.EqualFold(p.OutcomeB, label) {
			return true
		}
	}
	return false
}
