package domain

import "time"

// BookTop is the top-of-book view the detector works from: best bid and ask
// with the size available at each. Prices are on the venue's native scale;
// the detector normalizes via the connector's PriceScale.
type BookTop struct {
	Venue      Venue
	QuestionID string
	Outcome    string // outcome label this book quotes, e.g. "Yes"
	BestBid    float64
	BidSize    float64
	BestAsk    float64
	AskSize    float64
	FetchedAt  time.Time
}

// Normalized returns a copy with prices divided by scale (100 for venues that
// quote in cents, 1 for probability-scale venues). Sizes are untouched.
func (b BookTop) Normalized(scale float64) BookTop {
	if scale <= 0 || scale == 1 {
		return b
	}
	b.BestBid /= scale
	b.BestAsk /= scale
	return b
}

// Stale reports whether the snapshot is older than maxAge at the given time.
func (b BookTop) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(b.FetchedAt) > maxAge
}
