package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossarb/engine/internal/domain"
	"github.com/crossarb/engine/internal/match"
)

func newTestMapper(questionsA, questionsB []domain.MarketQuestion) (*Mapper, *memMappings) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	connA := &fakeConn{venue: domain.VenueKalshi, scale: 100, questions: questionsA}
	connB := &fakeConn{venue: domain.VenuePolymarket, scale: 1, questions: questionsB}
	clf := match.NewClassifier(
		match.NewScorer(match.DefaultKeywordGroups()),
		match.DefaultWeights(),
		match.DefaultThresholds(),
	)
	store := newMemMappings()
	return NewMapper(connA, connB, clf, store, logger), store
}

func question(venue domain.Venue, id, title, category string, resolution time.Time) domain.MarketQuestion {
	return domain.MarketQuestion{
		ID:             id,
		Venue:          venue,
		Title:          title,
		Category:       category,
		ResolutionTime: resolution,
		Outcomes:       []string{"Yes", "No"},
		FetchedAt:      time.Now().UTC(),
	}
}

func TestDiscover_ExactTitlesMapActive(t *testing.T) {
	res := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	m, store := newTestMapper(
		[]domain.MarketQuestion{question(domain.VenueKalshi, "k-1", "Will Bitcoin close above $100k this year?", "crypto", res)},
		[]domain.MarketQuestion{question(domain.VenuePolymarket, "p-1", "Will Bitcoin close above $100K this year?", "crypto", res)},
	)

	stats, err := m.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Auto)
	assert.Equal(t, 0, stats.Review)

	active, err := store.LoadActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "k-1", active[0].QuestionA)
	assert.Equal(t, "p-1", active[0].QuestionB)
	assert.Equal(t, domain.MatchMethodExact, active[0].Method)
	assert.Equal(t, 1.0, active[0].Confidence)
	require.Len(t, active[0].Outcomes, 2)
}

func TestDiscover_UnrelatedQuestionsRejected(t *testing.T) {
	res := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	m, store := newTestMapper(
		[]domain.MarketQuestion{question(domain.VenueKalshi, "k-1", "Will it snow in Miami in July?", "weather", res)},
		[]domain.MarketQuestion{question(domain.VenuePolymarket, "p-1", "Will the Lakers win the NBA championship?", "sports", res.AddDate(0, 6, 0))},
	)

	stats, err := m.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)

	active, err := store.LoadActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDiscover_OpposingPhrasingQueuedForReview(t *testing.T) {
	res := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	m, store := newTestMapper(
		[]domain.MarketQuestion{question(domain.VenueKalshi, "k-1",
			"Will the Supreme Court overturn the ruling by June 30?", "politics", res)},
		[]domain.MarketQuestion{question(domain.VenuePolymarket, "p-1",
			"Will the Supreme Court uphold the ruling by June 30?", "politics", res)},
	)

	stats, err := m.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Auto)
	assert.Equal(t, 1, stats.Review)

	// Review-tier mappings are persisted but never active.
	active, err := store.LoadActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.items, 1)
	for _, saved := range store.items {
		assert.False(t, saved.Active)
	}
}

func TestDiscover_CandidateClaimedOnce(t *testing.T) {
	res := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	title := "Will Bitcoin close above $100k this year?"
	m, store := newTestMapper(
		[]domain.MarketQuestion{
			question(domain.VenueKalshi, "k-1", title, "crypto", res),
			question(domain.VenueKalshi, "k-2", title, "crypto", res),
		},
		[]domain.MarketQuestion{question(domain.VenuePolymarket, "p-1", title, "crypto", res)},
	)

	stats, err := m.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Auto)

	// The single venue-B question backs exactly one active mapping.
	active, err := store.LoadActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "k-1", active[0].QuestionA)
}

func TestDiscover_OutcomeCountMismatchSkipped(t *testing.T) {
	res := time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC)
	qa := question(domain.VenueKalshi, "k-1", "Will Bitcoin close above $100k this year?", "crypto", res)
	qb := question(domain.VenuePolymarket, "p-1", "Will Bitcoin close above $100k this year?", "crypto", res)
	qb.Outcomes = []string{"Yes", "No", "Tie"}

	m, store := newTestMapper(
		[]domain.MarketQuestion{qa},
		[]domain.MarketQuestion{qb},
	)

	stats, err := m.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)

	active, err := store.LoadActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}
