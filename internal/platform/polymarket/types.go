package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	ConditionID   string   `json:"condition_id"`
	Slug          string   `json:"slug"`
	Active        flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Category      string   `json:"category"`
	Outcomes      string   `json:"outcomes"`       // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string   `json:"outcomePrices"`  // JSON-encoded: e.g. "[\"0.5\",\"0.5\"]"
	ClobTokenIDs  string   `json:"clobTokenIds"`   // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Volume        string   `json:"volume"`
	EndDateISO    string   `json:"endDateIso"`
	EnableOrderBook bool   `json:"enableOrderBook"`
}

// outcomeList decodes the JSON-encoded Outcomes field.
func (m *APIMarket) outcomeList() []string {
	var out []string
	_ = json.Unmarshal([]byte(m.Outcomes), &out)
	return out
}

// priceList decodes the JSON-encoded OutcomePrices field.
func (m *APIMarket) priceList() []string {
	var out []string
	_ = json.Unmarshal([]byte(m.OutcomePrices), &out)
	return out
}

// tokenList decodes the JSON-encoded ClobTokenIDs field. Token order matches
// outcome order.
func (m *APIMarket) tokenList() []string {
	var out []string
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &out)
	return out
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBook is a full orderbook snapshot from the CLOB /book endpoint.
type APIBook struct {
	Market    string     `json:"market"`
	AssetID   string     `json:"asset_id"`
	Timestamp string     `json:"timestamp"`
	Bids      []APILevel `json:"bids"`
	Asks      []APILevel `json:"asks"`
}

// APILevel is a single price level; the CLOB encodes numbers as strings.
type APILevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIOrderRequest is the order payload posted to the CLOB /order endpoint.
type APIOrderRequest struct {
	TokenID   string `json:"tokenID"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`      // "BUY" or "SELL"
	OrderType string `json:"orderType"` // "FOK"
	Owner     string `json:"owner"`
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	Status       string `json:"status,omitempty"` // "matched", "live", "unmatched"
	MakingAmount string `json:"makingAmount,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
}

// APIBalance is the response from the CLOB balance-allowance endpoint. The
// balance is a raw USDC amount with 6 decimals.
type APIBalance struct {
	Balance string `json:"balance"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is a subscribe/unsubscribe command sent to the market channel.
type WSCommand struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// WSBookMessage is a full book snapshot pushed on the market channel.
type WSBookMessage struct {
	EventType string     `json:"event_type"` // "book"
	AssetID   string     `json:"asset_id"`
	Market    string     `json:"market"`
	Timestamp string     `json:"timestamp"`
	Bids      []APILevel `json:"bids"`
	Asks      []APILevel `json:"asks"`
}
