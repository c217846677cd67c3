// Package polymarket implements the Polymarket venue connector. Discovery
// goes through the Gamma API, trading and books through the CLOB (Central
// Limit Order Book) API, and live book updates through the CLOB WebSocket.
// Polymarket quotes directly in probability space, so the price scale is 1.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/crossarb/engine/internal/domain"
)

// fetchPageSize is the gamma pagination size for question discovery.
const fetchPageSize = 200

// usdcDecimals converts raw collateral balances (6-decimal USDC) to USD.
const usdcDecimals = 1e6

// Config holds the connector parameters. The api_key/secret/passphrase triple
// is a pre-derived CLOB credential.
type Config struct {
	ClobHost        string
	GammaHost       string
	ApiKey          string
	ApiSecret       string
	Passphrase      string
	FunderAddress   string
	RateLimitPerSec float64
	RequestTimeout  time.Duration
}

// Client is the Polymarket venue connector. It implements
// domain.MarketConnector. Question IDs are CLOB token IDs of the primary
// outcome, so books and orders address the token directly.
type Client struct {
	clobHost   string
	gammaHost  string
	auth       *hmacAuth
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Polymarket connector.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RateLimitPerSec
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		clobHost:  cfg.ClobHost,
		gammaHost: cfg.GammaHost,
		auth: &hmacAuth{
			key:        cfg.ApiKey,
			secret:     cfg.ApiSecret,
			passphrase: cfg.Passphrase,
			address:    cfg.FunderAddress,
		},
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(math.Ceil(rps))),
		logger:     logger.With(slog.String("component", "polymarket")),
	}
}

// Venue returns the venue identifier.
func (c *Client) Venue() domain.Venue { return domain.VenuePolymarket }

// PriceScale returns 1: Polymarket quotes are already probabilities.
func (c *Client) PriceScale() float64 { return 1 }

// FetchQuestions pages through open gamma markets and maps each tradeable one
// to a question keyed by its primary-outcome token ID.
func (c *Client) FetchQuestions(ctx context.Context) ([]domain.MarketQuestion, error) {
	var questions []domain.MarketQuestion
	now := time.Now().UTC()

	for offset := 0; ; offset += fetchPageSize {
		params := url.Values{}
		params.Set("closed", "false")
		params.Set("limit", strconv.Itoa(fetchPageSize))
		params.Set("offset", strconv.Itoa(offset))

		body, err := c.doGamma(ctx, "/markets?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket: get markets: %w", err)
		}

		var markets []APIMarket
		if err := json.Unmarshal(body, &markets); err != nil {
			return nil, fmt.Errorf("polymarket: decode markets: %w", err)
		}

		for i := range markets {
			q, ok := toQuestion(&markets[i], now)
			if !ok {
				continue
			}
			questions = append(questions, q)
		}

		if len(markets) < fetchPageSize {
			break
		}
	}

	c.logger.Debug("questions fetched", slog.Int("count", len(questions)))
	return questions, nil
}

// toQuestion maps a gamma market to a question. Markets without an orderbook
// or without token IDs cannot be traded and are skipped.
func toQuestion(m *APIMarket, now time.Time) (domain.MarketQuestion, bool) {
	if !bool(m.Active) || m.Closed || !m.EnableOrderBook {
		return domain.MarketQuestion{}, false
	}
	tokens := m.tokenList()
	outcomes := m.outcomeList()
	if len(tokens) == 0 || len(outcomes) == 0 {
		return domain.MarketQuestion{}, false
	}

	prices := make([]float64, 0, len(outcomes))
	for _, p := range m.priceList() {
		f, _ := strconv.ParseFloat(p, 64)
		prices = append(prices, f)
	}

	resolution, _ := time.Parse(time.RFC3339, m.EndDateISO)
	return domain.MarketQuestion{
		ID:             tokens[0],
		Venue:          domain.VenuePolymarket,
		Title:          m.Question,
		Category:       m.Category,
		ResolutionTime: resolution,
		Outcomes:       outcomes,
		OutcomePrices:  prices,
		FetchedAt:      now,
	}, true
}

// FetchBook returns the top of book for the given token.
func (c *Client) FetchBook(ctx context.Context, questionID string) (domain.BookTop, error) {
	params := url.Values{}
	params.Set("token_id", questionID)

	body, err := c.doClob(ctx, http.MethodGet, "/book?"+params.Encode(), nil)
	if err != nil {
		return domain.BookTop{}, fmt.Errorf("polymarket: get book %s: %w", questionID, err)
	}

	var apiBook APIBook
	if err := json.Unmarshal(body, &apiBook); err != nil {
		return domain.BookTop{}, fmt.Errorf("polymarket: decode book: %w", err)
	}

	book := domain.BookTop{
		Venue:      domain.VenuePolymarket,
		QuestionID: questionID,
		Outcome:    "Yes",
		FetchedAt:  time.Now().UTC(),
	}
	if price, size, ok := bestOfSide(apiBook.Bids, true); ok {
		book.BestBid = price
		book.BidSize = size
	}
	if price, size, ok := bestOfSide(apiBook.Asks, false); ok {
		book.BestAsk = price
		book.AskSize = size
	}
	return book, nil
}

// bestOfSide finds the best level on one side: highest price for bids,
// lowest for asks.
func bestOfSide(levels []APILevel, wantHighest bool) (price, size float64, ok bool) {
	for _, lvl := range levels {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		if !ok || (wantHighest && p > price) || (!wantHighest && p < price) {
			price, size, ok = p, s, true
		}
	}
	return price, size, ok
}

// PlaceFOKOrder submits a fill-or-kill order to the CLOB.
func (c *Client) PlaceFOKOrder(ctx context.Context, order domain.FOKOrder, timeout time.Duration) (domain.FillResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	side := "BUY"
	if order.Side == domain.OrderSideSell {
		side = "SELL"
	}

	req := APIOrderRequest{
		TokenID:   order.QuestionID,
		Price:     strconv.FormatFloat(order.Price, 'f', 4, 64),
		Size:      strconv.FormatFloat(order.Quantity, 'f', 2, 64),
		Side:      side,
		OrderType: "FOK",
		Owner:     c.auth.key,
	}

	body, err := c.doClob(ctx, http.MethodPost, "/order", req)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("polymarket: place order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.FillResult{}, fmt.Errorf("polymarket: decode order result: %w", err)
	}

	fill := domain.FillResult{
		OrderID: result.OrderID,
		At:      time.Now().UTC(),
	}
	if result.Success && result.Status == "matched" {
		fill.Filled = true
		fill.FilledPrice, fill.FilledQuantity = fillFromAmounts(result, order)
	} else {
		reason := result.ErrorMsg
		if reason == "" {
			reason = "fok not matched: status " + result.Status
		}
		fill.Reason = reason
	}
	return fill, nil
}

// fillFromAmounts derives the effective fill price and quantity from the
// matched maker/taker amounts. A buy makes USDC and takes shares; a sell is
// the reverse. Falls back to the requested price/size when amounts are
// missing or unparseable.
func fillFromAmounts(result APIOrderResult, order domain.FOKOrder) (price, qty float64) {
	making, errM := strconv.ParseFloat(result.MakingAmount, 64)
	taking, errT := strconv.ParseFloat(result.TakingAmount, 64)
	if errM != nil || errT != nil || making <= 0 || taking <= 0 {
		return order.Price, order.Quantity
	}
	if order.Side == domain.OrderSideBuy {
		return making / taking, taking
	}
	return taking / making, making
}

// Balances returns free USDC collateral.
func (c *Client) Balances(ctx context.Context) (domain.Balances, error) {
	body, err := c.doClob(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("polymarket: get balance: %w", err)
	}

	var bal APIBalance
	if err := json.Unmarshal(body, &bal); err != nil {
		return domain.Balances{}, fmt.Errorf("polymarket: decode balance: %w", err)
	}

	raw, err := strconv.ParseFloat(bal.Balance, 64)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("polymarket: parse balance %q: %w", bal.Balance, err)
	}
	usd := raw / usdcDecimals
	return domain.Balances{
		Venue:     domain.VenuePolymarket,
		Available: usd,
		Total:     usd,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGamma sends an unauthenticated GET request to the Gamma API.
func (c *Client) doGamma(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gammaHost+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req)
}

// doClob builds, signs (HMAC), sends, and reads an HTTP request against the
// CLOB API.
func (c *Client) doClob(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	var bodyStr string
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.clobHost+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	for k, v := range c.auth.l2Headers(method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.MarketConnector = (*Client)(nil)
