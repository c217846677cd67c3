package domain

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// FOKOrder describes one fill-or-kill leg. The order either fills completely
// at the requested price or better, or is rejected with zero fill.
type FOKOrder struct {
	QuestionID string
	Outcome    string
	Side       OrderSide
	Price      float64 // normalized [0,1] limit price
	Quantity   float64
}

// FillResult is the venue's response to a FOK order. Filled=false covers both
// explicit rejection and timeout (a timed-out order is treated as rejected).
type FillResult struct {
	OrderID        string
	Filled         bool
	FilledPrice    float64
	FilledQuantity float64
	Reason         string
	At             time.Time
}

// Balances is the venue account view used for liquidity checks.
type Balances struct {
	Venue     Venue
	Available float64 // free collateral in USD
	Total     float64
	FetchedAt time.Time
}
