package domain

import (
	"context"
	"time"
)

// MarketConnector is the narrow per-venue interface the core trades through.
// Venue protocol specifics (auth, wire formats, pagination) live entirely
// behind it.
type MarketConnector interface {
	// Venue returns the venue this connector talks to.
	Venue() Venue
	// PriceScale is the divisor that maps native quotes to [0,1] probability
	// space: 100 for venues quoting in cents, 1 for probability venues.
	PriceScale() float64
	// FetchQuestions returns a snapshot of currently listed questions.
	FetchQuestions(ctx context.Context) ([]MarketQuestion, error)
	// FetchBook returns the top of book for one question's primary outcome.
	FetchBook(ctx context.Context, questionID string) (BookTop, error)
	// PlaceFOKOrder submits a fill-or-kill order and waits for resolution.
	// If the venue does not confirm within timeout the order is treated as
	// rejected; implementations must enforce the timeout explicitly.
	PlaceFOKOrder(ctx context.Context, order FOKOrder, timeout time.Duration) (FillResult, error)
	// Balances returns the account's collateral state.
	Balances(ctx context.Context) (Balances, error)
}
