package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossarb/engine/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookFeed streams full book snapshots from the CLOB market channel and warms
// the shared book cache so detection cycles can skip REST fetches for fresh
// books. It is an optimization layer only: the engine falls back to REST when
// a cached book is stale or missing.
type BookFeed struct {
	wsURL  string
	cache  domain.BookCache
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	// Token IDs to resubscribe after reconnect.
	assetIDs []string

	// done is closed when the feed is shut down.
	done chan struct{}
}

// NewBookFeed creates a feed writing snapshots for the given token IDs into
// cache with the given TTL.
//
// wsURL is the market channel endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewBookFeed(wsURL string, cache domain.BookCache, ttl time.Duration, logger *slog.Logger) *BookFeed {
	return &BookFeed{
		wsURL:  wsURL,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "polymarket_ws")),
		done:   make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Any previously subscribed token IDs are resubscribed.
func (f *BookFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("polymarket/ws: feed closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	f.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop()
	go f.pingLoop()

	if len(f.assetIDs) > 0 {
		if err := f.sendCommand(WSCommand{Type: "market", AssetsIDs: f.assetIDs}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}
	return nil
}

// Subscribe adds token IDs to the feed.
func (f *BookFeed) Subscribe(assetIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	if err := f.sendCommand(WSCommand{Type: "market", AssetsIDs: assetIDs}); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	f.assetIDs = append(f.assetIDs, assetIDs...)
	return nil
}

// Close shuts down the connection and stops the loops.
func (f *BookFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command. Caller must hold f.mu.
func (f *BookFeed) sendCommand(cmd WSCommand) error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages and caches book snapshots until disconnect, then
// hands off to reconnect.
func (f *BookFeed) readLoop() {
	for {
		select {
		case <-f.done:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.logger.Warn("feed disconnected", slog.String("error", err.Error()))
			f.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		f.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (f *BookFeed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a frame and caches any book snapshot it carries. The
// market channel can deliver a single event or an array of events.
func (f *BookFeed) handleMessage(raw []byte) {
	var batch []WSBookMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		var single WSBookMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			return // silently drop unparseable frames
		}
		batch = append(batch, single)
	}

	for i := range batch {
		if batch[i].EventType != "book" {
			continue
		}
		f.cacheSnapshot(&batch[i])
	}
}

// cacheSnapshot converts a book message to a top-of-book entry and stores it.
func (f *BookFeed) cacheSnapshot(msg *WSBookMessage) {
	book := domain.BookTop{
		Venue:      domain.VenuePolymarket,
		QuestionID: msg.AssetID,
		Outcome:    "Yes",
		FetchedAt:  time.Now().UTC(),
	}
	if price, size, ok := bestOfSide(msg.Bids, true); ok {
		book.BestBid = price
		book.BidSize = size
	}
	if price, size, ok := bestOfSide(msg.Asks, false); ok {
		book.BestAsk = price
		book.AskSize = size
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.cache.Set(ctx, book, f.ttl); err != nil {
		f.logger.Warn("cache book failed",
			slog.String("asset_id", msg.AssetID),
			slog.String("error", err.Error()))
	}
}

// reconnect re-establishes the connection with exponential backoff. It blocks
// until successful or the feed is closed.
func (f *BookFeed) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()

		if err == nil {
			f.logger.Info("feed reconnected")
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
