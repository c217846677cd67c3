package domain

import "time"

// ArbitrageOpportunity is a candidate two-leg trade produced by the detector.
// It lives for exactly one detection cycle and is never persisted as mutable
// state; each cycle produces fresh candidates.
type ArbitrageOpportunity struct {
	ID            string
	MappingID     string
	BuyVenue      Venue
	BuyQuestionID string
	BuyOutcome    string
	SellVenue     Venue
	SellQuestion  string
	SellOutcome   string
	BuyPrice      float64 // normalized ask on the buy side
	SellPrice     float64 // normalized bid on the sell side
	MaxQuantity   float64 // min of both books' depth, capped per trade
	GrossSpread   float64
	EstimatedFees float64
	NetProfit     float64 // per contract, gross spread minus fees
	DetectedAt    time.Time
}

// NetProfitPct is the net profit as a fraction of the buy-side entry price.
func (o ArbitrageOpportunity) NetProfitPct() float64 {
	if o.BuyPrice <= 0 {
		return 0
	}
	return o.NetProfit / o.BuyPrice
}

// Notional is the capital required for the buy leg at the suggested size.
func (o ArbitrageOpportunity) Notional(quantity float64) float64 {
	return o.BuyPrice * quantity
}
