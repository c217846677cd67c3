package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crossarb/engine/internal/domain"
)

// BookCache implements domain.BookCache. Each top-of-book snapshot is one
// JSON value under a TTL'd key, so stale entries evict themselves and a
// restart starts from an empty cache.
//
// Key schema:
//
//	book:{venue}:{questionID} - JSON-encoded domain.BookTop
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(venue domain.Venue, questionID string) string {
	return "book:" + string(venue) + ":" + questionID
}

// Set stores a snapshot under its venue and question with the given TTL.
func (bc *BookCache) Set(ctx context.Context, book domain.BookTop, ttl time.Duration) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: encode book: %w", err)
	}
	key := bookKey(book.Venue, book.QuestionID)
	if err := bc.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound when absent or
// expired.
func (bc *BookCache) Get(ctx context.Context, venue domain.Venue, questionID string) (domain.BookTop, error) {
	key := bookKey(venue, questionID)
	data, err := bc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookTop{}, domain.ErrNotFound
		}
		return domain.BookTop{}, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var book domain.BookTop
	if err := json.Unmarshal(data, &book); err != nil {
		return domain.BookTop{}, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return book, nil
}

var _ domain.BookCache = (*BookCache)(nil)
