package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crossarb/engine/internal/domain"
)

// pnlRetention keeps daily ledger keys around long enough for reconciliation
// before they expire on their own.
const pnlRetention = 72 * time.Hour

// PnLLedger implements domain.DailyPnLStore on a per-UTC-day float counter.
// IncrByFloat makes concurrent updates safe without a round trip, though in
// practice the execution coordinator is the only writer.
//
// Key schema:
//
//	pnl:{YYYY-MM-DD} - accumulated realized PnL for that UTC day
type PnLLedger struct {
	rdb *redis.Client
}

// NewPnLLedger creates a PnLLedger backed by the given Client.
func NewPnLLedger(c *Client) *PnLLedger {
	return &PnLLedger{rdb: c.Underlying()}
}

func pnlKey(day time.Time) string {
	return "pnl:" + day.UTC().Format("2006-01-02")
}

// Add accumulates delta into the day's realized PnL and returns the new total.
func (l *PnLLedger) Add(ctx context.Context, day time.Time, delta float64) (float64, error) {
	key := pnlKey(day)
	total, err := l.rdb.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: incr %s: %w", key, err)
	}
	// Refresh expiry on every write; a day that sees no trades simply ages out.
	if err := l.rdb.Expire(ctx, key, pnlRetention).Err(); err != nil {
		return total, fmt.Errorf("redis: expire %s: %w", key, err)
	}
	return total, nil
}

// Get returns the day's realized PnL, zero when no trades settled that day.
func (l *PnLLedger) Get(ctx context.Context, day time.Time) (float64, error) {
	key := pnlKey(day)
	val, err := l.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: get %s: %w", key, err)
	}
	total, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse %s value %q: %w", key, val, err)
	}
	return total, nil
}

var _ domain.DailyPnLStore = (*PnLLedger)(nil)
