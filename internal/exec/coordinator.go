// Package exec drives the two-leg fill-or-kill execution protocol and owns
// all position and PnL mutation.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crossarb/engine/internal/breaker"
	"github.com/crossarb/engine/internal/domain"
)

// Config holds execution parameters.
type Config struct {
	// OrderTimeout bounds each leg's confirmation wait. A leg that does not
	// resolve in time is treated as rejected.
	OrderTimeout time.Duration
	// MaxSlippagePct is the per-leg adverse price move assumed during the
	// pre-flight re-quote.
	MaxSlippagePct float64
	// MinProfitPct is the net-profit floor (fraction of entry price) the
	// slippage-adjusted spread must still clear before orders are placed.
	MinProfitPct float64
}

// Coordinator executes approved opportunities. The two legs of one execution
// are placed concurrently and awaited jointly; this is the only concurrency
// within a detection cycle, and the origin of the asymmetric-fill hazard.
// Positions, the execution log, and the daily-PnL ledger are mutated here and
// nowhere else.
type Coordinator struct {
	connectors map[domain.Venue]domain.MarketConnector
	positions  domain.PositionStore
	execs      domain.ExecutionStore
	pnl        domain.DailyPnLStore
	breaker    *breaker.CircuitBreaker
	alerts     domain.AlertSink
	cfg        Config
	logger     *slog.Logger

	// mu serializes terminal-state handling so each opportunity resolves to
	// exactly one execution outcome decision.
	mu sync.Mutex
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	connectors map[domain.Venue]domain.MarketConnector,
	positions domain.PositionStore,
	execs domain.ExecutionStore,
	pnl domain.DailyPnLStore,
	cb *breaker.CircuitBreaker,
	alerts domain.AlertSink,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		connectors: connectors,
		positions:  positions,
		execs:      execs,
		pnl:        pnl,
		breaker:    cb,
		alerts:     alerts,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "executor")),
	}
}

// Execute runs one opportunity through the PENDING -> terminal state machine
// and returns the recorded attempt. The error return covers infrastructure
// faults only; rejected legs are normal data on the record.
func (c *Coordinator) Execute(ctx context.Context, opp domain.ArbitrageOpportunity, quantity float64) (domain.ExecutionRecord, error) {
	if c.breaker.IsPaused() {
		return domain.ExecutionRecord{}, domain.ErrTradingPaused
	}

	buyConn, ok := c.connectors[opp.BuyVenue]
	if !ok {
		return domain.ExecutionRecord{}, fmt.Errorf("exec: no connector for venue %s", opp.BuyVenue)
	}
	sellConn, ok := c.connectors[opp.SellVenue]
	if !ok {
		return domain.ExecutionRecord{}, fmt.Errorf("exec: no connector for venue %s", opp.SellVenue)
	}

	rec := domain.ExecutionRecord{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		MappingID:     opp.MappingID,
		Outcome:       domain.ExecPending,
		ExpectedEdge:  opp.NetProfit,
		StartedAt:     time.Now().UTC(),
		BuyLeg: domain.ExecutionLeg{
			Venue:          opp.BuyVenue,
			QuestionID:     opp.BuyQuestionID,
			Outcome:        opp.BuyOutcome,
			Side:           domain.OrderSideBuy,
			RequestedPrice: opp.BuyPrice,
			Quantity:       quantity,
		},
		SellLeg: domain.ExecutionLeg{
			Venue:          opp.SellVenue,
			QuestionID:     opp.SellQuestion,
			Outcome:        opp.SellOutcome,
			Side:           domain.OrderSideSell,
			RequestedPrice: opp.SellPrice,
			Quantity:       quantity,
		},
	}

	// Pre-flight re-quote: the spread must survive the configured worst-case
	// slippage on both legs, or no orders are placed at all.
	if !c.clearsSlippage(opp) {
		rec.Outcome = domain.ExecAborted
		c.finish(ctx, &rec)
		c.logger.Info("execution aborted pre-flight",
			slog.String("opp_id", opp.ID),
			slog.Float64("net_profit", opp.NetProfit),
		)
		return rec, nil
	}

	buyRes, sellRes := c.placeLegs(ctx, buyConn, sellConn, opp, quantity)
	applyFill(&rec.BuyLeg, buyRes)
	applyFill(&rec.SellLeg, sellRes)

	c.resolve(ctx, &rec)
	return rec, nil
}

// clearsSlippage checks the worst-case spread against the profit floor.
func (c *Coordinator) clearsSlippage(opp domain.ArbitrageOpportunity) bool {
	buy := opp.BuyPrice * (1 + c.cfg.MaxSlippagePct)
	sell := opp.SellPrice * (1 - c.cfg.MaxSlippagePct)
	adjusted := sell - buy - opp.EstimatedFees
	return adjusted > c.cfg.MinProfitPct*buy
}

// placeLegs submits both FOK orders concurrently and waits for both.
func (c *Coordinator) placeLegs(
	ctx context.Context,
	buyConn, sellConn domain.MarketConnector,
	opp domain.ArbitrageOpportunity,
	quantity float64,
) (domain.FillResult, domain.FillResult) {
	var wg sync.WaitGroup
	var buyRes, sellRes domain.FillResult

	wg.Add(2)
	go func() {
		defer wg.Done()
		buyRes = c.placeLeg(ctx, buyConn, domain.FOKOrder{
			QuestionID: opp.BuyQuestionID,
			Outcome:    opp.BuyOutcome,
			Side:       domain.OrderSideBuy,
			Price:      opp.BuyPrice,
			Quantity:   quantity,
		})
	}()
	go func() {
		defer wg.Done()
		sellRes = c.placeLeg(ctx, sellConn, domain.FOKOrder{
			QuestionID: opp.SellQuestion,
			Outcome:    opp.SellOutcome,
			Side:       domain.OrderSideSell,
			Price:      opp.SellPrice,
			Quantity:   quantity,
		})
	}()
	wg.Wait()
	return buyRes, sellRes
}

// placeLeg submits one FOK order with an explicit watchdog on top of the
// connector's own timeout. A leg that neither fills nor rejects in time is
// treated as rejected.
func (c *Coordinator) placeLeg(ctx context.Context, conn domain.MarketConnector, order domain.FOKOrder) domain.FillResult {
	type outcome struct {
		res domain.FillResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := conn.PlaceFOKOrder(ctx, order, c.cfg.OrderTimeout)
		done <- outcome{res, err}
	}()

	watchdog := c.cfg.OrderTimeout + 2*time.Second
	select {
	case out := <-done:
		if out.err != nil {
			c.logger.Warn("leg placement failed",
				slog.String("venue", string(conn.Venue())),
				slog.String("side", string(order.Side)),
				slog.String("error", out.err.Error()),
			)
			return domain.FillResult{Filled: false, Reason: out.err.Error(), At: time.Now().UTC()}
		}
		return out.res
	case <-time.After(watchdog):
		c.logger.Warn("leg confirmation timed out, treating as rejected",
			slog.String("venue", string(conn.Venue())),
			slog.String("side", string(order.Side)),
		)
		return domain.FillResult{Filled: false, Reason: domain.ErrOrderTimeout.Error(), At: time.Now().UTC()}
	}
}

func applyFill(leg *domain.ExecutionLeg, res domain.FillResult) {
	leg.Filled = res.Filled
	leg.OrderID = res.OrderID
	leg.Reason = res.Reason
	if res.Filled {
		leg.FilledPrice = res.FilledPrice
		if leg.RequestedPrice > 0 {
			leg.SlippageBps = (res.FilledPrice - leg.RequestedPrice) / leg.RequestedPrice * 10_000
		}
	}
}

// resolve maps the two fill results to a terminal state and applies the
// corresponding position, ledger, and breaker effects. Serialized so one
// opportunity yields exactly one outcome decision.
func (c *Coordinator) resolve(ctx context.Context, rec *domain.ExecutionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case rec.BuyLeg.Filled && rec.SellLeg.Filled:
		rec.Outcome = domain.ExecBothFilled
		rec.RealizedPnL = (rec.SellLeg.FilledPrice - rec.BuyLeg.FilledPrice) * rec.BuyLeg.Quantity
		c.openPosition(ctx, rec.BuyLeg)
		c.openPosition(ctx, rec.SellLeg)
		c.creditDailyPnL(ctx, rec.RealizedPnL)
		c.breaker.RecordSuccess()
		c.logger.Info("both legs filled",
			slog.String("exec_id", rec.ID),
			slog.Float64("realized_pnl", rec.RealizedPnL),
			slog.Float64("buy_slippage_bps", rec.BuyLeg.SlippageBps),
			slog.Float64("sell_slippage_bps", rec.SellLeg.SlippageBps),
		)

	case !rec.BuyLeg.Filled && !rec.SellLeg.Filled:
		// The expected common case: the opportunity evaporated before our
		// orders arrived. No position opened.
		rec.Outcome = domain.ExecBothRejected
		c.breaker.RecordFailure(ctx, "both legs rejected")
		c.logger.Info("both legs rejected",
			slog.String("exec_id", rec.ID),
			slog.String("buy_reason", rec.BuyLeg.Reason),
			slog.String("sell_reason", rec.SellLeg.Reason),
		)

	default:
		// Exactly one leg filled: unhedged exposure. Pause trading and page
		// the operator; unwinding is a manual action by design.
		rec.Outcome = domain.ExecAsymmetric
		filled, rejected := rec.BuyLeg, rec.SellLeg
		if rec.SellLeg.Filled {
			filled, rejected = rec.SellLeg, rec.BuyLeg
		}
		c.openPosition(ctx, filled)

		detail := fmt.Sprintf("%s %s leg filled %.0f @ %.4f on %s; %s leg rejected on %s (%s)",
			filled.Side, filled.Outcome, filled.Quantity, filled.FilledPrice, filled.Venue,
			rejected.Side, rejected.Venue, rejected.Reason)
		c.logger.Error("asymmetric execution, unhedged position open",
			slog.String("exec_id", rec.ID),
			slog.String("detail", detail),
		)
		c.breaker.RecordAsymmetric(ctx, detail)
		if c.alerts != nil {
			if err := c.alerts.SendCritical(ctx, "Asymmetric execution", detail); err != nil {
				c.logger.Error("critical alert delivery failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	c.finish(ctx, rec)
}

func (c *Coordinator) openPosition(ctx context.Context, leg domain.ExecutionLeg) {
	pos := domain.Position{
		ID:            uuid.New().String(),
		Venue:         leg.Venue,
		QuestionID:    leg.QuestionID,
		Outcome:       leg.Outcome,
		Side:          leg.Side,
		Quantity:      leg.Quantity,
		AvgEntryPrice: leg.FilledPrice,
		Status:        domain.PositionStatusOpen,
		OpenedAt:      time.Now().UTC(),
	}
	if err := c.positions.Create(ctx, pos); err != nil {
		c.logger.Error("position create failed",
			slog.String("question_id", leg.QuestionID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) creditDailyPnL(ctx context.Context, delta float64) {
	if c.pnl == nil {
		return
	}
	total, err := c.pnl.Add(ctx, time.Now().UTC(), delta)
	if err != nil {
		c.logger.Error("daily pnl update failed", slog.String("error", err.Error()))
		return
	}
	c.breaker.RecordDailyPnL(ctx, total)
}

func (c *Coordinator) finish(ctx context.Context, rec *domain.ExecutionRecord) {
	now := time.Now().UTC()
	rec.CompletedAt = &now
	if c.execs == nil {
		return
	}
	if err := c.execs.Create(ctx, *rec); err != nil {
		c.logger.Warn("execution record persist failed",
			slog.String("exec_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}
