package detect

import "math"

// FeeModel estimates the taker fee for one leg. Models are supplied per venue
// by the caller; the detector itself has no fee knowledge baked in.
type FeeModel interface {
	Name() string
	// EstimateFee returns the expected fee per contract for taking liquidity
	// at the given normalized price. expectedProfit is the per-contract gross
	// profit of the round trip, for models that charge on profit.
	EstimateFee(price, expectedProfit float64) float64
}

// FlatRateFee charges a flat percentage of notional on the leg, the common
// taker-fee structure.
type FlatRateFee struct {
	Bps float64
}

func (f FlatRateFee) Name() string { return "flat_rate" }

func (f FlatRateFee) EstimateFee(price, _ float64) float64 {
	if price <= 0 {
		return 0
	}
	return price * f.Bps / 10_000
}

// QuadraticFee charges rate * p * (1-p) per contract, the structure used by
// venues that price fees off contract risk. Fees peak at p=0.5.
type QuadraticFee struct {
	Rate float64
}

func (f QuadraticFee) Name() string { return "quadratic" }

func (f QuadraticFee) EstimateFee(price, _ float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return f.Rate * price * (1 - price)
}

// CappedProfitFee charges a percentage of the round-trip profit, capped at a
// fraction of the leg's notional. Losing or flat trades pay nothing.
type CappedProfitFee struct {
	Rate   float64 // fraction of profit, e.g. 0.10
	CapBps float64 // cap as bps of leg notional
}

func (f CappedProfitFee) Name() string { return "capped_profit" }

func (f CappedProfitFee) EstimateFee(price, expectedProfit float64) float64 {
	if expectedProfit <= 0 || price <= 0 {
		return 0
	}
	fee := expectedProfit * f.Rate
	cap := price * f.CapBps / 10_000
	return math.Min(fee, cap)
}

// ZeroFee is the no-fee model, useful for tests and fee-free venues.
type ZeroFee struct{}

func (ZeroFee) Name() string                   { return "zero" }
func (ZeroFee) EstimateFee(_, _ float64) float64 { return 0 }
