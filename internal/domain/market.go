package domain

import "time"

// Venue identifies one of the supported exchanges.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// MarketQuestion is a venue-agnostic snapshot of one listed question.
// Snapshots are immutable; a new one is produced on every fetch.
type MarketQuestion struct {
	ID             string
	Venue          Venue
	Title          string
	Category       string // empty when the venue does not label markets
	ResolutionTime time.Time
	Outcomes       []string  // e.g. ["Yes","No"]
	OutcomePrices  []float64 // probability-like values in [0,1], one per outcome
	FetchedAt      time.Time
}
