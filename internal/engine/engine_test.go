package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossarb/engine/internal/breaker"
	"github.com/crossarb/engine/internal/detect"
	"github.com/crossarb/engine/internal/domain"
	execpkg "github.com/crossarb/engine/internal/exec"
	"github.com/crossarb/engine/internal/risk"
)

type fakeConn struct {
	venue     domain.Venue
	scale     float64
	questions []domain.MarketQuestion
	fill      domain.FillResult

	mu         sync.Mutex
	books      map[string]domain.BookTop
	bookErr    error
	bookCalls  int
	orderCalls int
}

func (f *fakeConn) Venue() domain.Venue { return f.venue }
func (f *fakeConn) PriceScale() float64 { return f.scale }

func (f *fakeConn) FetchQuestions(context.Context) ([]domain.MarketQuestion, error) {
	return f.questions, nil
}

func (f *fakeConn) FetchBook(_ context.Context, questionID string) (domain.BookTop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls++
	if f.bookErr != nil {
		return domain.BookTop{}, f.bookErr
	}
	book, ok := f.books[questionID]
	if !ok {
		return domain.BookTop{}, domain.ErrNotFound
	}
	return book, nil
}

func (f *fakeConn) PlaceFOKOrder(context.Context, domain.FOKOrder, time.Duration) (domain.FillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	return f.fill, nil
}

func (f *fakeConn) Balances(context.Context) (domain.Balances, error) {
	return domain.Balances{}, nil
}

type memMappings struct {
	mu    sync.Mutex
	items map[string]domain.EventMapping
}

func newMemMappings(ms ...domain.EventMapping) *memMappings {
	s := &memMappings{items: make(map[string]domain.EventMapping)}
	for _, m := range ms {
		s.items[m.ID] = m
	}
	return s
}

func (s *memMappings) Save(_ context.Context, m domain.EventMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Active {
		for id, prev := range s.items {
			if prev.QuestionA == m.QuestionA && prev.Active {
				prev.Active = false
				s.items[id] = prev
			}
		}
	}
	s.items[m.ID] = m
	return nil
}

func (s *memMappings) LoadActive(context.Context) ([]domain.EventMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EventMapping
	for _, m := range s.items {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMappings) GetByID(_ context.Context, id string) (domain.EventMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return domain.EventMapping{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMappings) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Active = false
	s.items[id] = m
	return nil
}

type memPositions struct {
	mu      sync.Mutex
	created []domain.Position
}

func (m *memPositions) Create(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, p)
	return nil
}

func (m *memPositions) Close(context.Context, string, float64, float64) error { return nil }

func (m *memPositions) GetOpen(context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, len(m.created))
	copy(out, m.created)
	return out, nil
}

func (m *memPositions) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}

type memExecs struct {
	mu      sync.Mutex
	records []domain.ExecutionRecord
}

func (m *memExecs) Create(_ context.Context, rec domain.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memExecs) ListRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}
func (m *memExecs) ListBefore(context.Context, time.Time) ([]domain.ExecutionRecord, error) {
	return nil, nil
}
func (m *memExecs) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memPnL struct {
	mu    sync.Mutex
	total float64
}

func (m *memPnL) Add(_ context.Context, _ time.Time, delta float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += delta
	return m.total, nil
}

func (m *memPnL) Get(context.Context, time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, nil
}

type recordingAlerts struct {
	mu       sync.Mutex
	critical []string
	info     []string
}

func (r *recordingAlerts) SendCritical(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.critical = append(r.critical, title+": "+message)
	return nil
}

func (r *recordingAlerts) SendInfo(_ context.Context, _, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = append(r.info, title+": "+message)
	return nil
}

type harness struct {
	engine    *Engine
	kalshi    *fakeConn
	poly      *fakeConn
	mappings  *memMappings
	positions *memPositions
	execs     *memExecs
	breaker   *breaker.CircuitBreaker
	alerts    *recordingAlerts
}

func testMapping(id, qa, qb string) domain.EventMapping {
	now := time.Now().UTC()
	return domain.EventMapping{
		ID:         id,
		QuestionA:  qa,
		QuestionB:  qb,
		Confidence: 0.9,
		Method:     domain.MatchMethodKeyword,
		Outcomes:   []domain.OutcomePair{{OutcomeA: "Yes", OutcomeB: "Yes"}},
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// kalshiBook quotes in cents; the engine normalizes via PriceScale.
func kalshiBook(questionID string, bidCents, askCents, size float64) domain.BookTop {
	return domain.BookTop{
		Venue:      domain.VenueKalshi,
		QuestionID: questionID,
		Outcome:    "Yes",
		BestBid:    bidCents,
		BidSize:    size,
		BestAsk:    askCents,
		AskSize:    size,
		FetchedAt:  time.Now().UTC(),
	}
}

func polyBook(questionID string, bid, ask, size float64) domain.BookTop {
	return domain.BookTop{
		Venue:      domain.VenuePolymarket,
		QuestionID: questionID,
		Outcome:    "Yes",
		BestBid:    bid,
		BidSize:    size,
		BestAsk:    ask,
		AskSize:    size,
		FetchedAt:  time.Now().UTC(),
	}
}

func newHarness(cfg Config, mappings *memMappings) *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	alerts := &recordingAlerts{}
	cb := breaker.New(breaker.Config{MaxConsecutiveFailures: 3, AsymmetricThreshold: 1}, alerts, logger)

	h := &harness{
		kalshi: &fakeConn{
			venue: domain.VenueKalshi,
			scale: 100,
			books: map[string]domain.BookTop{},
			fill:  domain.FillResult{OrderID: "k-ord", Filled: true, FilledPrice: 0.40, At: time.Now().UTC()},
		},
		poly: &fakeConn{
			venue: domain.VenuePolymarket,
			scale: 1,
			books: map[string]domain.BookTop{},
			fill:  domain.FillResult{OrderID: "p-ord", Filled: true, FilledPrice: 0.50, At: time.Now().UTC()},
		},
		mappings:  mappings,
		positions: &memPositions{},
		execs:     &memExecs{},
		breaker:   cb,
		alerts:    alerts,
	}

	detector := detect.NewDetector(detect.Config{MinProfitPct: 0.01, MaxQuantityPerTrade: 100}, logger)
	fees := map[domain.Venue]detect.FeeModel{
		domain.VenueKalshi:     detect.ZeroFee{},
		domain.VenuePolymarket: detect.ZeroFee{},
	}
	gate := risk.NewGate(risk.Config{
		MaxTotalExposureUSD: 10_000,
		MinProfitPct:        0.01,
		MaxQuantityPerTrade: 100,
	}, logger)
	pnl := &memPnL{}
	coord := execpkg.NewCoordinator(
		map[domain.Venue]domain.MarketConnector{
			domain.VenueKalshi:     h.kalshi,
			domain.VenuePolymarket: h.poly,
		},
		h.positions, h.execs, pnl, cb, alerts,
		execpkg.Config{OrderTimeout: time.Second, MaxSlippagePct: 0.01, MinProfitPct: 0.01},
		logger,
	)

	h.engine = New(cfg, h.kalshi, h.poly, mappings, h.positions, pnl, nil,
		detector, fees, gate, coord, cb, alerts, logger)
	return h
}

func defaultEngineCfg() Config {
	return Config{
		CycleInterval:            time.Second,
		BookMaxAge:               5 * time.Second,
		FetchRetries:             1,
		FetchBackoff:             time.Millisecond,
		ConnectivityFailureLimit: 3,
	}
}

func TestRunCycle_ExecutesProfitableMapping(t *testing.T) {
	h := newHarness(defaultEngineCfg(), newMemMappings(testMapping("m1", "k-1", "p-1")))
	h.kalshi.books["k-1"] = kalshiBook("k-1", 38, 40, 50) // ask 0.40 after normalization
	h.poly.books["p-1"] = polyBook("p-1", 0.50, 0.52, 50)

	require.NoError(t, h.engine.RunCycle(context.Background()))

	require.Len(t, h.execs.records, 1)
	assert.Equal(t, domain.ExecBothFilled, h.execs.records[0].Outcome)
	assert.Len(t, h.positions.created, 2)
	assert.False(t, h.breaker.IsPaused())
}

func TestRunCycle_NoSpreadNoTrade(t *testing.T) {
	h := newHarness(defaultEngineCfg(), newMemMappings(testMapping("m1", "k-1", "p-1")))
	h.kalshi.books["k-1"] = kalshiBook("k-1", 48, 50, 50)
	h.poly.books["p-1"] = polyBook("p-1", 0.49, 0.51, 50)

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Empty(t, h.execs.records)
	assert.Empty(t, h.positions.created)
}

func TestRunCycle_SkipsWhilePaused(t *testing.T) {
	h := newHarness(defaultEngineCfg(), newMemMappings(testMapping("m1", "k-1", "p-1")))
	h.kalshi.books["k-1"] = kalshiBook("k-1", 38, 40, 50)
	h.poly.books["p-1"] = polyBook("p-1", 0.50, 0.52, 50)
	h.breaker.RecordAsymmetric(context.Background(), "earlier incident")

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Equal(t, 0, h.kalshi.bookCalls)
	assert.Empty(t, h.execs.records)
}

func TestRunCycle_MonitorOnlyAlertsWithoutTrading(t *testing.T) {
	cfg := defaultEngineCfg()
	cfg.MonitorOnly = true
	h := newHarness(cfg, newMemMappings(testMapping("m1", "k-1", "p-1")))
	h.kalshi.books["k-1"] = kalshiBook("k-1", 38, 40, 50)
	h.poly.books["p-1"] = polyBook("p-1", 0.50, 0.52, 50)

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Empty(t, h.execs.records)
	assert.Equal(t, 0, h.kalshi.orderCalls)
	assert.NotEmpty(t, h.alerts.info)
}

func TestRunCycle_InvalidMappingDeactivated(t *testing.T) {
	bad := testMapping("m1", "k-1", "p-1")
	bad.Outcomes = nil
	h := newHarness(defaultEngineCfg(), newMemMappings(bad))

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Equal(t, 0, h.kalshi.bookCalls)

	stored, err := h.mappings.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestRunCycle_FetchFailureSkipsMapping(t *testing.T) {
	h := newHarness(defaultEngineCfg(), newMemMappings(
		testMapping("m1", "k-1", "p-1"),
		testMapping("m2", "k-2", "p-2"),
	))
	// k-1 is missing from the venue; k-2 and p-2 price a clean spread.
	h.kalshi.books["k-2"] = kalshiBook("k-2", 38, 40, 50)
	h.poly.books["p-1"] = polyBook("p-1", 0.50, 0.52, 50)
	h.poly.books["p-2"] = polyBook("p-2", 0.50, 0.52, 50)

	require.NoError(t, h.engine.RunCycle(context.Background()))

	// The broken mapping is skipped; the healthy one still trades.
	require.Len(t, h.execs.records, 1)
	assert.Equal(t, domain.ExecBothFilled, h.execs.records[0].Outcome)
}

func TestRunCycle_SustainedOutageTripsBreaker(t *testing.T) {
	h := newHarness(defaultEngineCfg(), newMemMappings(testMapping("m1", "k-1", "p-1")))
	h.kalshi.bookErr = errors.New("dial tcp: connection refused")

	ctx := context.Background()
	require.NoError(t, h.engine.RunCycle(ctx))
	require.NoError(t, h.engine.RunCycle(ctx))
	assert.False(t, h.breaker.IsPaused())

	require.NoError(t, h.engine.RunCycle(ctx))
	assert.True(t, h.breaker.IsPaused())
	assert.Contains(t, h.breaker.State().Reason, "connectivity")
}

func TestRunCycle_RecoveryResetsOutageCounter(t *testing.T) {
	h := newHarness(defaultEngineCfg(), newMemMappings(testMapping("m1", "k-1", "p-1")))
	h.poly.books["p-1"] = polyBook("p-1", 0.49, 0.51, 50)
	h.kalshi.bookErr = errors.New("dial tcp: connection refused")

	ctx := context.Background()
	require.NoError(t, h.engine.RunCycle(ctx))
	require.NoError(t, h.engine.RunCycle(ctx))

	h.kalshi.mu.Lock()
	h.kalshi.bookErr = nil
	h.kalshi.books["k-1"] = kalshiBook("k-1", 48, 50, 50)
	h.kalshi.mu.Unlock()
	require.NoError(t, h.engine.RunCycle(ctx))

	h.kalshi.mu.Lock()
	h.kalshi.bookErr = errors.New("dial tcp: connection refused")
	h.kalshi.mu.Unlock()
	require.NoError(t, h.engine.RunCycle(ctx))
	require.NoError(t, h.engine.RunCycle(ctx))
	assert.False(t, h.breaker.IsPaused())
}

func TestRunCycle_AsymmetricStopsCycle(t *testing.T) {
	h := newHarness(defaultEngineCfg(), newMemMappings(
		testMapping("m1", "k-1", "p-1"),
		testMapping("m2", "k-2", "p-2"),
	))
	for _, q := range []string{"k-1", "k-2"} {
		h.kalshi.books[q] = kalshiBook(q, 38, 40, 50)
	}
	for _, q := range []string{"p-1", "p-2"} {
		h.poly.books[q] = polyBook(q, 0.50, 0.52, 50)
	}
	h.poly.fill = domain.FillResult{Filled: false, Reason: "insufficient liquidity", At: time.Now().UTC()}

	require.NoError(t, h.engine.RunCycle(context.Background()))

	// The asymmetric fill pauses trading; the second mapping never executes.
	require.Len(t, h.execs.records, 1)
	assert.Equal(t, domain.ExecAsymmetric, h.execs.records[0].Outcome)
	assert.True(t, h.breaker.IsPaused())
	assert.Len(t, h.positions.created, 1)
}
