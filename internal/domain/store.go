package domain

import (
	"context"
	"time"
)

// MappingStore persists event mappings. Save deactivates any prior active
// mapping for the same venue-A question so that at most one active mapping
// exists per question.
type MappingStore interface {
	Save(ctx context.Context, m EventMapping) error
	LoadActive(ctx context.Context) ([]EventMapping, error)
	GetByID(ctx context.Context, id string) (EventMapping, error)
	Deactivate(ctx context.Context, id string) error
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	Close(ctx context.Context, id string, exitPrice, realizedPnL float64) error
	GetOpen(ctx context.Context) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
}

// ExecutionStore persists execution attempts with both legs.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]ExecutionRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BookCache caches top-of-book snapshots between detection cycles so a live
// feed can warm them and the engine can fall back on recent data.
type BookCache interface {
	Set(ctx context.Context, book BookTop, ttl time.Duration) error
	Get(ctx context.Context, venue Venue, questionID string) (BookTop, error)
}

// DailyPnLStore tracks realized PnL per UTC day for the daily-loss limit.
type DailyPnLStore interface {
	Add(ctx context.Context, day time.Time, delta float64) (float64, error)
	Get(ctx context.Context, day time.Time) (float64, error)
}

// AlertSink receives operator notifications. SendCritical is reserved for
// circuit-breaker trips and asymmetric executions.
type AlertSink interface {
	SendCritical(ctx context.Context, title, message string) error
	SendInfo(ctx context.Context, event, title, message string) error
}
