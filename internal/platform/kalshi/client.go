// Package kalshi implements the Kalshi venue connector. Kalshi quotes in
// cents (1-99), authenticates with RSA-PSS request signatures, and exposes
// binary Yes/No markets.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/crossarb/engine/internal/domain"
)

// fetchPageSize is the market pagination size for question discovery.
const fetchPageSize = 200

// Config holds the connector parameters.
type Config struct {
	BaseURL           string
	ApiKeyID          string
	RsaPrivateKeyPath string
	RateLimitPerSec   float64
	RequestTimeout    time.Duration
}

// Client is the Kalshi venue connector. It implements domain.MarketConnector.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Kalshi connector, loading the RSA signing key from the
// configured path.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RateLimitPerSec
	if rps <= 0 {
		rps = 10
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKeyID:   cfg.ApiKeyID,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(math.Ceil(rps))),
		logger:     logger.With(slog.String("component", "kalshi")),
	}

	if cfg.RsaPrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(cfg.RsaPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("kalshi: read private key: %w", err)
		}
		if err := c.setRSAPrivateKey(pemBytes); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// setRSAPrivateKey parses a PEM-encoded RSA private key (PKCS8 or PKCS1).
func (c *Client) setRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// Venue returns the venue identifier.
func (c *Client) Venue() domain.Venue { return domain.VenueKalshi }

// PriceScale returns 100: Kalshi quotes in cents.
func (c *Client) PriceScale() float64 { return 100 }

// FetchQuestions pages through all open markets and maps them to questions.
func (c *Client) FetchQuestions(ctx context.Context) ([]domain.MarketQuestion, error) {
	var questions []domain.MarketQuestion
	cursor := ""
	now := time.Now().UTC()

	for {
		params := url.Values{}
		params.Set("status", "open")
		params.Set("limit", strconv.Itoa(fetchPageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := c.doSignedRequest(ctx, http.MethodGet, "/markets?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("kalshi: get markets: %w", err)
		}

		var resp struct {
			Markets []Market `json:"markets"`
			Cursor  string   `json:"cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("kalshi: decode markets: %w", err)
		}

		for _, m := range resp.Markets {
			questions = append(questions, toQuestion(m, now))
		}

		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}

	c.logger.Debug("questions fetched", slog.Int("count", len(questions)))
	return questions, nil
}

func toQuestion(m Market, now time.Time) domain.MarketQuestion {
	title := m.Title
	if m.Subtitle != "" {
		title = m.Title + " " + m.Subtitle
	}
	resolution, _ := time.Parse(time.RFC3339, m.CloseTime)
	return domain.MarketQuestion{
		ID:             m.Ticker,
		Venue:          domain.VenueKalshi,
		Title:          title,
		Category:       m.Category,
		ResolutionTime: resolution,
		Outcomes:       []string{"Yes", "No"},
		OutcomePrices:  []float64{m.YesAsk / 100, m.NoAsk / 100},
		FetchedAt:      now,
	}
}

// FetchBook returns the top of book for the market's Yes outcome, in cents.
// The Yes ask is implied by the best No bid: yes_ask = 100 - best_no_bid.
func (c *Client) FetchBook(ctx context.Context, questionID string) (domain.BookTop, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(questionID))
	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.BookTop{}, fmt.Errorf("kalshi: get orderbook %s: %w", questionID, err)
	}

	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.BookTop{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}

	book := domain.BookTop{
		Venue:      domain.VenueKalshi,
		QuestionID: questionID,
		Outcome:    "Yes",
		FetchedAt:  time.Now().UTC(),
	}
	if lvl, ok := bestLevel(resp.Orderbook.Yes); ok {
		book.BestBid = float64(lvl.Price)
		book.BidSize = float64(lvl.Quantity)
	}
	if lvl, ok := bestLevel(resp.Orderbook.No); ok {
		book.BestAsk = float64(100 - lvl.Price)
		book.AskSize = float64(lvl.Quantity)
	}
	return book, nil
}

// bestLevel returns the highest-priced level on one side.
func bestLevel(levels []PriceLevel) (PriceLevel, bool) {
	if len(levels) == 0 {
		return PriceLevel{}, false
	}
	best := levels[0]
	for _, lvl := range levels[1:] {
		if lvl.Price > best.Price {
			best = lvl
		}
	}
	return best, true
}

// PlaceFOKOrder submits a fill-or-kill limit order. Prices arrive normalized
// to [0,1] and are converted to cents here.
func (c *Client) PlaceFOKOrder(ctx context.Context, order domain.FOKOrder, timeout time.Duration) (domain.FillResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cents := int64(math.Round(order.Price * 100))
	if cents < 1 || cents > 99 {
		return domain.FillResult{}, fmt.Errorf("kalshi: limit price %.4f out of range", order.Price)
	}

	req := Order{
		Ticker:      order.QuestionID,
		Action:      string(order.Side),
		Side:        "yes",
		Type:        "limit",
		Count:       int64(math.Floor(order.Quantity)),
		TimeInForce: "fill_or_kill",
	}
	if order.Outcome == "No" {
		req.Side = "no"
		req.NoPrice = &cents
	} else {
		req.YesPrice = &cents
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", req)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FillResult{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	result := domain.FillResult{
		OrderID: resp.Order.OrderID,
		At:      time.Now().UTC(),
	}
	if resp.Order.Status == "executed" && resp.Order.TakerFillCount > 0 {
		result.Filled = true
		result.FilledQuantity = float64(resp.Order.TakerFillCount)
		result.FilledPrice = float64(resp.Order.TakerFillCost) / float64(resp.Order.TakerFillCount) / 100
	} else {
		result.Reason = "fok not filled: status " + resp.Order.Status
	}
	return result, nil
}

// Balances returns free collateral in USD.
func (c *Client) Balances(ctx context.Context) (domain.Balances, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("kalshi: get balance: %w", err)
	}

	var resp BalanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balances{}, fmt.Errorf("kalshi: decode balance: %w", err)
	}
	return domain.Balances{
		Venue:     domain.VenueKalshi,
		Available: float64(resp.Balance) / 100,
		Total:     float64(resp.Balance+resp.Payout) / 100,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs (RSA), sends, and reads an HTTP request
// against the Kalshi API, respecting the client-side rate limit.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Market data endpoints accept unauthenticated requests; only sign when a
	// key is configured. Portfolio and order endpoints reject unsigned calls.
	if c.privateKey != nil {
		if err := c.signRequest(req, method, path); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// signRequest adds RSA authentication headers. Kalshi signs the string
// timestamp + method + path with RSA-PSS-SHA256.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: bad request: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

var _ domain.MarketConnector = (*Client)(nil)
