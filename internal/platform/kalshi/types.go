package kalshi

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// Market represents a market as returned by the Kalshi REST API.
type Market struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	Status       string  `json:"status"` // "open", "closed", "settled"
	YesBid       float64 `json:"yes_bid"`
	YesAsk       float64 `json:"yes_ask"`
	NoBid        float64 `json:"no_bid"`
	NoAsk        float64 `json:"no_ask"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"open_interest"`
	Category     string  `json:"category"`
	CloseTime    string  `json:"close_time"`
}

// Orderbook represents the orderbook for a Kalshi market. Kalshi publishes
// resting bids on each side; the ask for Yes is implied by the best No bid
// (yes_ask = 100 - best_no_bid).
type Orderbook struct {
	Yes []PriceLevel `json:"yes"`
	No  []PriceLevel `json:"no"`
}

// PriceLevel is a single price+quantity entry in the Kalshi orderbook.
type PriceLevel struct {
	Price    int64 `json:"price"`    // in cents (1-99)
	Quantity int64 `json:"quantity"` // number of contracts
}

// Order represents an order to be placed on the Kalshi exchange.
type Order struct {
	Ticker      string `json:"ticker"`
	Action      string `json:"action"` // "buy" or "sell"
	Side        string `json:"side"`   // "yes" or "no"
	Type        string `json:"type"`   // "market" or "limit"
	Count       int64  `json:"count"`
	YesPrice    *int64 `json:"yes_price,omitempty"` // limit price in cents (1-99)
	NoPrice     *int64 `json:"no_price,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"` // "fill_or_kill"
}

// OrderResponse represents the API response after placing an order.
type OrderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Ticker         string `json:"ticker"`
		Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
		Action         string `json:"action"`
		Side           string `json:"side"`
		YesPrice       int64  `json:"yes_price"`
		NoPrice        int64  `json:"no_price"`
		RemainingCount int64  `json:"remaining_count"`
		TakerFillCount int64  `json:"taker_fill_count"`
		TakerFillCost  int64  `json:"taker_fill_cost"` // cents, summed over fills
	} `json:"order"`
}

// BalanceResponse represents the portfolio balance response.
type BalanceResponse struct {
	Balance int64 `json:"balance"` // free collateral in cents
	Payout  int64 `json:"payout"`
}

// ErrorResponse represents a Kalshi API error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
