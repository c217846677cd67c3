package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crossarb/engine/internal/domain"
	"github.com/crossarb/engine/internal/match"
)

// Mapper discovers cross-venue event mappings. It fetches the question lists
// from both venues, classifies every venue-A question against the venue-B
// candidates, and persists the results: auto-tier matches become active
// mappings, review-tier matches are stored inactive for an operator to
// approve, reject-tier pairs leave no trace.
type Mapper struct {
	connA  domain.MarketConnector
	connB  domain.MarketConnector
	clf    *match.Classifier
	store  domain.MappingStore
	logger *slog.Logger
}

// NewMapper creates a Mapper.
func NewMapper(connA, connB domain.MarketConnector, clf *match.Classifier, store domain.MappingStore, logger *slog.Logger) *Mapper {
	return &Mapper{
		connA:  connA,
		connB:  connB,
		clf:    clf,
		store:  store,
		logger: logger.With(slog.String("component", "mapper")),
	}
}

// DiscoveryStats summarizes one discovery run.
type DiscoveryStats struct {
	ScannedA int
	ScannedB int
	Auto     int
	Review   int
	Rejected int
	Skipped  int // candidate pairs that failed mapping validation
}

// Discover runs one full matching pass. Each venue-B question is claimed by at
// most one auto-tier mapping; review-tier matches may share candidates since
// an operator resolves them.
func (m *Mapper) Discover(ctx context.Context) (DiscoveryStats, error) {
	var stats DiscoveryStats

	questionsA, err := m.connA.FetchQuestions(ctx)
	if err != nil {
		return stats, fmt.Errorf("engine: fetch questions from %s: %w", m.connA.Venue(), err)
	}
	questionsB, err := m.connB.FetchQuestions(ctx)
	if err != nil {
		return stats, fmt.Errorf("engine: fetch questions from %s: %w", m.connB.Venue(), err)
	}
	stats.ScannedA = len(questionsA)
	stats.ScannedB = len(questionsB)

	claimed := make(map[string]bool, len(questionsB))

	for _, qa := range questionsA {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		candidates := make([]domain.MarketQuestion, 0, len(questionsB))
		for _, qb := range questionsB {
			if !claimed[qb.ID] {
				candidates = append(candidates, qb)
			}
		}
		idx, score, ok := m.clf.BestMatch(qa, candidates)
		if !ok || score.Tier == match.TierReject {
			stats.Rejected++
			continue
		}
		qb := candidates[idx]

		outcomes, err := match.PairOutcomes(qa, qb)
		if err != nil {
			m.logger.Debug("candidate pair unusable",
				slog.String("question_a", qa.ID),
				slog.String("question_b", qb.ID),
				slog.String("error", err.Error()),
			)
			stats.Skipped++
			continue
		}

		now := time.Now().UTC()
		mapping := domain.EventMapping{
			ID:         uuid.New().String(),
			QuestionA:  qa.ID,
			QuestionB:  qb.ID,
			Confidence: score.Overall,
			Method:     score.Method,
			Outcomes:   outcomes,
			Active:     score.Tier == match.TierAuto,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := mapping.ValidateAgainst(qa.Outcomes, qb.Outcomes); err != nil {
			stats.Skipped++
			continue
		}

		if err := m.store.Save(ctx, mapping); err != nil {
			m.logger.Error("mapping save failed",
				slog.String("question_a", qa.ID),
				slog.String("error", err.Error()),
			)
			stats.Skipped++
			continue
		}

		if mapping.Active {
			claimed[qb.ID] = true
			stats.Auto++
			m.logger.Info("mapping created",
				slog.String("mapping_id", mapping.ID),
				slog.String("question_a", qa.ID),
				slog.String("question_b", qb.ID),
				slog.Float64("confidence", score.Overall),
				slog.String("method", string(score.Method)),
			)
		} else {
			stats.Review++
			m.logger.Info("mapping queued for review",
				slog.String("mapping_id", mapping.ID),
				slog.String("question_a", qa.ID),
				slog.String("question_b", qb.ID),
				slog.Float64("confidence", score.Overall),
			)
		}
	}

	m.logger.Info("discovery complete",
		slog.Int("scanned_a", stats.ScannedA),
		slog.Int("scanned_b", stats.ScannedB),
		slog.Int("auto", stats.Auto),
		slog.Int("review", stats.Review),
		slog.Int("rejected", stats.Rejected),
		slog.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
