// Package breaker implements the process-wide trading circuit breaker: a
// safety latch that halts new trading on repeated or severe failures until an
// operator explicitly resumes.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds the breaker trip thresholds.
type Config struct {
	// MaxConsecutiveFailures pauses trading after this many failures with no
	// intervening success.
	MaxConsecutiveFailures int
	// AsymmetricThreshold pauses trading after this many asymmetric
	// executions. The default of 1 means any asymmetric fill trips.
	AsymmetricThreshold int
	// DailyLossLimitUSD pauses trading once realized daily PnL drops to or
	// below the negative of this value.
	DailyLossLimitUSD float64
}

// Snapshot is the queryable breaker state.
type Snapshot struct {
	Paused              bool
	Reason              string
	ConsecutiveFailures int
	AsymmetricFailures  int
	PausedAt            time.Time
}

// AlertSender is the slice of the alert sink the breaker needs.
type AlertSender interface {
	SendCritical(ctx context.Context, title, message string) error
}

// CircuitBreaker is the RUNNING/PAUSED state machine. Every execution outcome
// feeds it; once paused, only an explicit operator Resume clears the state
// and resets all counters. There is no automatic resume.
type CircuitBreaker struct {
	cfg    Config
	alerts AlertSender
	logger *slog.Logger

	mu                  sync.Mutex
	paused              bool
	reason              string
	consecutiveFailures int
	asymmetricFailures  int
	pausedAt            time.Time
}

// New creates a CircuitBreaker in the RUNNING state.
func New(cfg Config, alerts AlertSender, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:    cfg,
		alerts: alerts,
		logger: logger.With(slog.String("component", "circuit_breaker")),
	}
}

// IsPaused reports whether new trading is vetoed.
func (b *CircuitBreaker) IsPaused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// State returns the current breaker state for status queries.
func (b *CircuitBreaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Paused:              b.paused,
		Reason:              b.reason,
		ConsecutiveFailures: b.consecutiveFailures,
		AsymmetricFailures:  b.asymmetricFailures,
		PausedAt:            b.pausedAt,
	}
}

// RecordSuccess resets the consecutive-failure counter. It does not unpause.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
}

// RecordFailure counts one benign execution failure and pauses once the
// consecutive-failure threshold is reached.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, detail string) {
	b.mu.Lock()
	b.consecutiveFailures++
	count := b.consecutiveFailures
	shouldTrip := !b.paused && count >= b.cfg.MaxConsecutiveFailures
	b.mu.Unlock()

	b.logger.Debug("failure recorded",
		slog.Int("consecutive", count),
		slog.String("detail", detail),
	)
	if shouldTrip {
		b.trip(ctx, fmt.Sprintf("%d consecutive execution failures (last: %s)", count, detail))
	}
}

// RecordAsymmetric counts an asymmetric execution and trips the breaker once
// the threshold (default 1) is reached. This is the critical failure mode:
// the book now holds unhedged exposure.
func (b *CircuitBreaker) RecordAsymmetric(ctx context.Context, detail string) {
	b.mu.Lock()
	b.asymmetricFailures++
	count := b.asymmetricFailures
	shouldTrip := !b.paused && count >= b.cfg.AsymmetricThreshold
	b.mu.Unlock()

	if shouldTrip {
		b.trip(ctx, "asymmetric execution: "+detail)
	}
}

// RecordDailyPnL trips the breaker when realized daily PnL breaches the loss
// limit.
func (b *CircuitBreaker) RecordDailyPnL(ctx context.Context, dailyPnL float64) {
	if b.cfg.DailyLossLimitUSD <= 0 {
		return
	}
	b.mu.Lock()
	shouldTrip := !b.paused && dailyPnL <= -b.cfg.DailyLossLimitUSD
	b.mu.Unlock()

	if shouldTrip {
		b.trip(ctx, fmt.Sprintf("daily loss limit breached: %.2f USD", dailyPnL))
	}
}

// RecordConnectivityLoss trips the breaker on sustained venue connectivity
// loss, signaled by the engine after retries are exhausted.
func (b *CircuitBreaker) RecordConnectivityLoss(ctx context.Context, venue string) {
	b.mu.Lock()
	shouldTrip := !b.paused
	b.mu.Unlock()

	if shouldTrip {
		b.trip(ctx, "sustained connectivity loss: "+venue)
	}
}

// Resume clears the paused state and zeroes all failure counters. Operator
// action only.
func (b *CircuitBreaker) Resume() {
	b.mu.Lock()
	wasPaused := b.paused
	reason := b.reason
	b.paused = false
	b.reason = ""
	b.consecutiveFailures = 0
	b.asymmetricFailures = 0
	b.pausedAt = time.Time{}
	b.mu.Unlock()

	if wasPaused {
		b.logger.Info("circuit breaker resumed by operator",
			slog.String("previous_reason", reason),
		)
	}
}

func (b *CircuitBreaker) trip(ctx context.Context, reason string) {
	b.mu.Lock()
	if b.paused {
		b.mu.Unlock()
		return
	}
	b.paused = true
	b.reason = reason
	b.pausedAt = time.Now().UTC()
	b.mu.Unlock()

	b.logger.Error("circuit breaker tripped, trading paused",
		slog.String("reason", reason),
	)
	if b.alerts != nil {
		if err := b.alerts.SendCritical(ctx, "Circuit breaker tripped", reason); err != nil {
			b.logger.Error("critical alert delivery failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
