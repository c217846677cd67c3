// Package detect computes fee-adjusted arbitrage candidates from paired
// top-of-book snapshots.
package detect

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crossarb/engine/internal/domain"
)

// Config holds the detector thresholds. All values come from configuration.
type Config struct {
	// MinProfitPct is the minimum net profit as a fraction of the buy-side
	// entry price for a candidate to be emitted.
	MinProfitPct float64
	// MaxQuantityPerTrade caps the candidate size regardless of book depth.
	MaxQuantityPerTrade float64
}

// Detector evaluates mapped pairs for priced arbitrage. It emits at most one
// candidate per mapping per detection cycle; when both directions qualify,
// only the more profitable one is returned so capital is never double-counted.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Detect evaluates both trade directions for a mapped pair. bookA and bookB
// must already be normalized to [0,1] probability space (see
// BookTop.Normalized). fees supplies the per-venue fee model for each leg.
// The second return is false when no direction clears the profit threshold.
func (d *Detector) Detect(
	bookA, bookB domain.BookTop,
	mapping domain.EventMapping,
	fees map[domain.Venue]FeeModel,
	now time.Time,
) (domain.ArbitrageOpportunity, bool) {
	buyAB, okAB := d.direction(bookA, bookB, mapping, fees, now)
	buyBA, okBA := d.direction(bookB, bookA, mapping, fees, now)

	switch {
	case okAB && okBA:
		// Both directions qualify; emit only the better one.
		if buyAB.NetProfit >= buyBA.NetProfit {
			return buyAB, true
		}
		return buyBA, true
	case okAB:
		return buyAB, true
	case okBA:
		return buyBA, true
	default:
		return domain.ArbitrageOpportunity{}, false
	}
}

// direction prices the buy-on-buyBook / sell-on-sellBook direction.
func (d *Detector) direction(
	buyBook, sellBook domain.BookTop,
	mapping domain.EventMapping,
	fees map[domain.Venue]FeeModel,
	now time.Time,
) (domain.ArbitrageOpportunity, bool) {
	buyAsk := buyBook.BestAsk
	sellBid := sellBook.BestBid
	if buyAsk <= 0 || sellBid <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	gross := sellBid - buyAsk
	if gross <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	var estFees float64
	if m, ok := fees[buyBook.Venue]; ok {
		estFees += m.EstimateFee(buyAsk, gross)
	}
	if m, ok := fees[sellBook.Venue]; ok {
		estFees += m.EstimateFee(sellBid, gross)
	}

	net := gross - estFees
	if net <= d.cfg.MinProfitPct*buyAsk {
		return domain.ArbitrageOpportunity{}, false
	}

	qty := buyBook.AskSize
	if sellBook.BidSize < qty {
		qty = sellBook.BidSize
	}
	if d.cfg.MaxQuantityPerTrade > 0 && qty > d.cfg.MaxQuantityPerTrade {
		qty = d.cfg.MaxQuantityPerTrade
	}
	if qty <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	opp := domain.ArbitrageOpportunity{
		ID:            uuid.New().String(),
		MappingID:     mapping.ID,
		BuyVenue:      buyBook.Venue,
		BuyQuestionID: buyBook.QuestionID,
		BuyOutcome:    buyBook.Outcome,
		SellVenue:     sellBook.Venue,
		SellQuestion:  sellBook.QuestionID,
		SellOutcome:   sellBook.Outcome,
		BuyPrice:      buyAsk,
		SellPrice:     sellBid,
		MaxQuantity:   qty,
		GrossSpread:   gross,
		EstimatedFees: estFees,
		NetProfit:     net,
		DetectedAt:    now,
	}

	d.logger.Debug("arbitrage candidate",
		slog.String("mapping_id", mapping.ID),
		slog.String("buy_venue", string(opp.BuyVenue)),
		slog.String("sell_venue", string(opp.SellVenue)),
		slog.Float64("gross_spread", gross),
		slog.Float64("net_profit", net),
		slog.Float64("max_quantity", qty),
	)
	return opp, true
}
