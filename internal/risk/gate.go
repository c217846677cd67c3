// Package risk validates arbitrage candidates against exposure, imbalance,
// and loss limits before execution.
package risk

import (
	"fmt"
	"log/slog"

	"github.com/crossarb/engine/internal/domain"
)

// Config holds the risk limits. All values come from configuration and are
// validated at startup.
type Config struct {
	MaxTotalExposureUSD    float64
	MaxPerEventExposureUSD float64
	// MaxImbalanceUSD caps the net unhedged notional across the two legs of
	// one mapped event.
	MaxImbalanceUSD   float64
	DailyLossLimitUSD float64
	// MinProfitPct is the minimum net profit as a fraction of entry price.
	MinProfitPct float64
	// MinLiquidityDepth warns (but does not reject) when the candidate's
	// available size is below this many contracts.
	MinLiquidityDepth   float64
	MaxQuantityPerTrade float64
}

// Decision is the gate's verdict. Rejections are data, not errors: a dropped
// opportunity is a normal outcome of a detection cycle.
type Decision struct {
	Approved          bool
	Reasons           []string
	SuggestedQuantity float64
}

// Gate checks candidates against the configured limits. It only reads
// positions and PnL; all mutation stays with the execution coordinator.
type Gate struct {
	cfg    Config
	logger *slog.Logger
}

// NewGate creates a Gate.
func NewGate(cfg Config, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_gate")),
	}
}

// Check validates an opportunity against the limits in order, short-circuiting
// on the first failing hard limit. The liquidity-depth check is a warning
// only. SuggestedQuantity is populated even on approval: the requested size
// capped by the per-trade maximum.
func (g *Gate) Check(opp domain.ArbitrageOpportunity, positions []domain.Position, dailyPnL float64) Decision {
	qty := opp.MaxQuantity
	if g.cfg.MaxQuantityPerTrade > 0 && qty > g.cfg.MaxQuantityPerTrade {
		qty = g.cfg.MaxQuantityPerTrade
	}

	d := Decision{SuggestedQuantity: qty}

	// Warning-only checks never reject but always surface in Reasons.
	if g.cfg.MinLiquidityDepth > 0 && opp.MaxQuantity < g.cfg.MinLiquidityDepth {
		d.Reasons = append(d.Reasons, fmt.Sprintf(
			"warning: thin liquidity, %.0f contracts available (min %.0f)",
			opp.MaxQuantity, g.cfg.MinLiquidityDepth))
	}

	tradeNotional := opp.Notional(qty)

	// 1. Total exposure cap.
	if g.cfg.MaxTotalExposureUSD > 0 {
		total := openExposure(positions)
		if total+tradeNotional > g.cfg.MaxTotalExposureUSD {
			return g.reject(d, fmt.Sprintf(
				"total exposure %.2f + trade %.2f exceeds cap %.2f",
				total, tradeNotional, g.cfg.MaxTotalExposureUSD))
		}
	}

	// 2. Per-event exposure cap.
	if g.cfg.MaxPerEventExposureUSD > 0 {
		event := eventExposure(positions, opp)
		if event+tradeNotional > g.cfg.MaxPerEventExposureUSD {
			return g.reject(d, fmt.Sprintf(
				"event exposure %.2f + trade %.2f exceeds cap %.2f",
				event, tradeNotional, g.cfg.MaxPerEventExposureUSD))
		}
	}

	// 3. Position imbalance cap: net unhedged value on this event.
	if g.cfg.MaxImbalanceUSD > 0 {
		imbalance := eventImbalance(positions, opp)
		if imbalance > g.cfg.MaxImbalanceUSD {
			return g.reject(d, fmt.Sprintf(
				"event imbalance %.2f exceeds cap %.2f",
				imbalance, g.cfg.MaxImbalanceUSD))
		}
	}

	// 4. Daily loss cap: once breached, all new trades are rejected.
	if g.cfg.DailyLossLimitUSD > 0 && dailyPnL <= -g.cfg.DailyLossLimitUSD {
		return g.reject(d, fmt.Sprintf(
			"daily loss limit breached: %.2f USD", dailyPnL))
	}

	// 5. Minimum net profit percentage.
	if opp.NetProfitPct() < g.cfg.MinProfitPct {
		return g.reject(d, fmt.Sprintf(
			"net profit %.2f%% below minimum %.2f%%",
			opp.NetProfitPct()*100, g.cfg.MinProfitPct*100))
	}

	d.Approved = true
	return d
}

func (g *Gate) reject(d Decision, reason string) Decision {
	d.Approved = false
	d.Reasons = append(d.Reasons, reason)
	g.logger.Debug("opportunity rejected", slog.String("reason", reason))
	return d
}

func openExposure(positions []domain.Position) float64 {
	var total float64
	for _, p := range positions {
		if p.Status == domain.PositionStatusOpen {
			total += p.Notional()
		}
	}
	return total
}

// eventExposure sums open notional on either question of the mapped pair.
func eventExposure(positions []domain.Position, opp domain.ArbitrageOpportunity) float64 {
	var total float64
	for _, p := range positions {
		if p.Status == domain.PositionStatusOpen && onEvent(p, opp) {
			total += p.Notional()
		}
	}
	return total
}

// eventImbalance is the absolute difference between buy-side and sell-side
// open notional on the mapped event. A perfectly hedged book nets to zero.
func eventImbalance(positions []domain.Position, opp domain.ArbitrageOpportunity) float64 {
	var net float64
	for _, p := range positions {
		if p.Status != domain.PositionStatusOpen || !onEvent(p, opp) {
			continue
		}
		if p.Side == domain.OrderSideBuy {
			net += p.Notional()
		} else {
			net -= p.Notional()
		}
	}
	if net < 0 {
		return -net
	}
	return net
}

func onEvent(p domain.Position, opp domain.ArbitrageOpportunity) bool {
	return (p.Venue == opp.BuyVenue && p.QuestionID == opp.BuyQuestionID) ||
		(p.Venue == opp.SellVenue && p.QuestionID == opp.SellQuestion)
}
