// Package engine runs the detection loop: load mappings, fetch books, detect
// spreads, gate, execute. Cycles are strictly sequential; the only concurrency
// in the trade path is the two-leg placement inside the coordinator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossarb/engine/internal/breaker"
	"github.com/crossarb/engine/internal/detect"
	"github.com/crossarb/engine/internal/domain"
	execpkg "github.com/crossarb/engine/internal/exec"
	"github.com/crossarb/engine/internal/risk"
)

// Config holds the loop parameters.
type Config struct {
	// CycleInterval is the pause between detection cycles. A cycle that runs
	// long simply delays the next one; cycles never overlap.
	CycleInterval time.Duration
	// BookMaxAge bounds how old a cached book snapshot may be before the
	// engine refetches it live.
	BookMaxAge time.Duration
	// FetchRetries is how many times a failed book fetch is retried with
	// backoff before the mapping is skipped for the cycle.
	FetchRetries int
	// FetchBackoff is the initial retry delay, doubled per attempt.
	FetchBackoff time.Duration
	// ConnectivityFailureLimit trips the circuit breaker after this many
	// consecutive cycles in which a venue served no data at all.
	ConnectivityFailureLimit int
	// MonitorOnly logs and alerts on opportunities without placing orders.
	MonitorOnly bool
}

// Engine wires the detection pipeline together and owns the cycle loop.
// connA serves QuestionA of every mapping and connB serves QuestionB.
type Engine struct {
	cfg        Config
	connA      domain.MarketConnector
	connB      domain.MarketConnector
	mappings   domain.MappingStore
	positions  domain.PositionStore
	pnl        domain.DailyPnLStore
	books      domain.BookCache
	detector   *detect.Detector
	fees       map[domain.Venue]detect.FeeModel
	gate       *risk.Gate
	coord      *execpkg.Coordinator
	breaker    *breaker.CircuitBreaker
	alerts     domain.AlertSink
	logger     *slog.Logger

	// venueFailures counts consecutive cycles per venue with zero successful
	// fetches. Reset on any success.
	venueFailures map[domain.Venue]int
}

// New creates an Engine. books, pnl, and alerts may be nil; the corresponding
// features degrade gracefully.
func New(
	cfg Config,
	connA, connB domain.MarketConnector,
	mappings domain.MappingStore,
	positions domain.PositionStore,
	pnl domain.DailyPnLStore,
	books domain.BookCache,
	detector *detect.Detector,
	fees map[domain.Venue]detect.FeeModel,
	gate *risk.Gate,
	coord *execpkg.Coordinator,
	cb *breaker.CircuitBreaker,
	alerts domain.AlertSink,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:           cfg,
		connA:         connA,
		connB:         connB,
		mappings:      mappings,
		positions:     positions,
		pnl:           pnl,
		books:         books,
		detector:      detector,
		fees:          fees,
		gate:          gate,
		coord:         coord,
		breaker:       cb,
		alerts:        alerts,
		logger:        logger.With(slog.String("component", "engine")),
		venueFailures: make(map[domain.Venue]int),
	}
}

// Run executes detection cycles until the context is cancelled. One cycle
// completes fully before the next begins.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		slog.Duration("cycle_interval", e.cfg.CycleInterval),
		slog.Bool("monitor_only", e.cfg.MonitorOnly),
	)
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		if err := e.RunCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			e.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one full detection pass over all active mappings.
func (e *Engine) RunCycle(ctx context.Context) error {
	if e.breaker.IsPaused() {
		e.logger.Warn("trading paused, skipping cycle",
			slog.String("reason", e.breaker.State().Reason),
		)
		return nil
	}

	active, err := e.mappings.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("engine: load mappings: %w", err)
	}

	fetched := make(map[domain.Venue]bool, 2)
	attempted := make(map[domain.Venue]bool, 2)
	var detected, executed int

	for _, m := range active {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.Validate(); err != nil {
			// A malformed mapping must never reach pricing. Deactivate so it
			// stops consuming cycles until an operator repairs it.
			e.logger.Warn("invalid mapping skipped",
				slog.String("mapping_id", m.ID),
				slog.String("error", err.Error()),
			)
			if derr := e.mappings.Deactivate(ctx, m.ID); derr != nil {
				e.logger.Error("mapping deactivation failed",
					slog.String("mapping_id", m.ID),
					slog.String("error", derr.Error()),
				)
			}
			continue
		}

		attempted[e.connA.Venue()] = true
		attempted[e.connB.Venue()] = true

		bookA, err := e.bookFor(ctx, e.connA, m.QuestionA)
		if err != nil {
			e.logger.Warn("book fetch exhausted, mapping skipped",
				slog.String("mapping_id", m.ID),
				slog.String("venue", string(e.connA.Venue())),
				slog.String("error", err.Error()),
			)
			continue
		}
		fetched[e.connA.Venue()] = true

		bookB, err := e.bookFor(ctx, e.connB, m.QuestionB)
		if err != nil {
			e.logger.Warn("book fetch exhausted, mapping skipped",
				slog.String("mapping_id", m.ID),
				slog.String("venue", string(e.connB.Venue())),
				slog.String("error", err.Error()),
			)
			continue
		}
		fetched[e.connB.Venue()] = true

		opp, ok := e.detector.Detect(bookA, bookB, m, e.fees, time.Now().UTC())
		if !ok {
			continue
		}
		detected++

		if e.handleOpportunity(ctx, opp) {
			executed++
		}
		if e.breaker.IsPaused() {
			// An asymmetric fill mid-cycle vetoes everything after it.
			break
		}
	}

	e.trackConnectivity(ctx, attempted, fetched)

	e.logger.Info("cycle complete",
		slog.Int("mappings", len(active)),
		slog.Int("detected", detected),
		slog.Int("executed", executed),
	)
	return nil
}

// handleOpportunity gates and executes one candidate. Returns true when an
// execution attempt was made.
func (e *Engine) handleOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) bool {
	if e.cfg.MonitorOnly {
		e.logger.Info("opportunity (monitor only)",
			slog.String("opp_id", opp.ID),
			slog.Float64("net_profit", opp.NetProfit),
			slog.Float64("max_quantity", opp.MaxQuantity),
		)
		if e.alerts != nil {
			msg := fmt.Sprintf("buy %s @ %.4f, sell %s @ %.4f, net %.4f x %.0f",
				opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice, opp.NetProfit, opp.MaxQuantity)
			if err := e.alerts.SendInfo(ctx, "opportunity", "Arbitrage opportunity", msg); err != nil {
				e.logger.Warn("info alert delivery failed", slog.String("error", err.Error()))
			}
		}
		return false
	}

	open, err := e.positions.GetOpen(ctx)
	if err != nil {
		e.logger.Error("open positions unavailable, opportunity dropped",
			slog.String("error", err.Error()),
		)
		return false
	}
	var dailyPnL float64
	if e.pnl != nil {
		if v, err := e.pnl.Get(ctx, time.Now().UTC()); err == nil {
			dailyPnL = v
		}
	}

	decision := e.gate.Check(opp, open, dailyPnL)
	if !decision.Approved {
		e.logger.Info("opportunity rejected by risk gate",
			slog.String("opp_id", opp.ID),
			slog.Any("reasons", decision.Reasons),
		)
		return false
	}

	rec, err := e.coord.Execute(ctx, opp, decision.SuggestedQuantity)
	if err != nil {
		e.logger.Error("execution failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	e.logger.Info("execution finished",
		slog.String("opp_id", opp.ID),
		slog.String("outcome", string(rec.Outcome)),
	)
	return true
}

// bookFor returns a normalized top-of-book for the question, serving from the
// cache when fresh and otherwise fetching live with bounded retry.
func (e *Engine) bookFor(ctx context.Context, conn domain.MarketConnector, questionID string) (domain.BookTop, error) {
	now := time.Now().UTC()
	if e.books != nil {
		if cached, err := e.books.Get(ctx, conn.Venue(), questionID); err == nil {
			if !cached.Stale(now, e.cfg.BookMaxAge) {
				return cached, nil
			}
		}
	}

	book, err := e.fetchWithRetry(ctx, conn, questionID)
	if err != nil {
		return domain.BookTop{}, err
	}
	book = book.Normalized(conn.PriceScale())
	if e.books != nil {
		if err := e.books.Set(ctx, book, e.cfg.BookMaxAge); err != nil {
			e.logger.Warn("book cache write failed", slog.String("error", err.Error()))
		}
	}
	return book, nil
}

func (e *Engine) fetchWithRetry(ctx context.Context, conn domain.MarketConnector, questionID string) (domain.BookTop, error) {
	backoff := e.cfg.FetchBackoff
	var lastErr error
	for attempt := 0; attempt <= e.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.BookTop{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		book, err := conn.FetchBook(ctx, questionID)
		if err == nil {
			return book, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return domain.BookTop{}, err
		}
	}
	return domain.BookTop{}, fmt.Errorf("engine: fetch book %s/%s: %w", conn.Venue(), questionID, lastErr)
}

// trackConnectivity counts cycles in which a venue was queried and returned
// nothing, tripping the breaker on a sustained outage.
func (e *Engine) trackConnectivity(ctx context.Context, attempted, fetched map[domain.Venue]bool) {
	if e.cfg.ConnectivityFailureLimit <= 0 {
		return
	}
	for venue := range attempted {
		if fetched[venue] {
			e.venueFailures[venue] = 0
			continue
		}
		e.venueFailures[venue]++
		if e.venueFailures[venue] >= e.cfg.ConnectivityFailureLimit {
			e.breaker.RecordConnectivityLoss(ctx, string(venue))
		}
	}
}
