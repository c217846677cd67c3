package breaker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerts struct {
	mu       sync.Mutex
	critical []string
}

func (r *recordingAlerts) SendCritical(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.critical = append(r.critical, title+": "+message)
	return nil
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *recordingAlerts) {
	alerts := &recordingAlerts{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, alerts, logger), alerts
}

func TestConsecutiveFailuresTrip(t *testing.T) {
	b, alerts := newTestBreaker(Config{MaxConsecutiveFailures: 3, AsymmetricThreshold: 1})
	ctx := context.Background()

	b.RecordFailure(ctx, "fok rejected")
	b.RecordFailure(ctx, "fok rejected")
	assert.False(t, b.IsPaused())

	b.RecordFailure(ctx, "fok rejected")
	assert.True(t, b.IsPaused())
	assert.Len(t, alerts.critical, 1)
	assert.Contains(t, b.State().Reason, "3 consecutive")
}

func TestSuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxConsecutiveFailures: 3, AsymmetricThreshold: 1})
	ctx := context.Background()

	b.RecordFailure(ctx, "x")
	b.RecordFailure(ctx, "x")
	b.RecordSuccess()
	b.RecordFailure(ctx, "x")
	b.RecordFailure(ctx, "x")
	assert.False(t, b.IsPaused())
	assert.Equal(t, 2, b.State().ConsecutiveFailures)
}

func TestAsymmetricTripsImmediately(t *testing.T) {
	b, alerts := newTestBreaker(Config{MaxConsecutiveFailures: 3, AsymmetricThreshold: 1})

	b.RecordAsymmetric(context.Background(), "buy leg filled, sell leg rejected")
	assert.True(t, b.IsPaused())
	require.Len(t, alerts.critical, 1)
	assert.Contains(t, alerts.critical[0], "asymmetric execution")
}

func TestDailyLossTrips(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxConsecutiveFailures: 3, AsymmetricThreshold: 1, DailyLossLimitUSD: 100})
	ctx := context.Background()

	b.RecordDailyPnL(ctx, -99.5)
	assert.False(t, b.IsPaused())
	b.RecordDailyPnL(ctx, -100)
	assert.True(t, b.IsPaused())
	assert.Contains(t, b.State().Reason, "daily loss")
}

func TestDailyLossDisabledWhenZero(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxConsecutiveFailures: 3, AsymmetricThreshold: 1})
	b.RecordDailyPnL(context.Background(), -1e9)
	assert.False(t, b.IsPaused())
}

func TestConnectivityLossTrips(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxConsecutiveFailures: 3, AsymmetricThreshold: 1})
	b.RecordConnectivityLoss(context.Background(), "kalshi")
	assert.True(t, b.IsPaused())
	assert.Contains(t, b.State().Reason, "connectivity")
}

func TestResumeClearsStateAndCounters(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxConsecutiveFailures: 2, AsymmetricThreshold: 1})
	ctx := context.Background()

	b.RecordFailure(ctx, "x")
	b.RecordFailure(ctx, "x")
	b.RecordAsymmetric(ctx, "y")
	require.True(t, b.IsPaused())

	b.Resume()
	assert.False(t, b.IsPaused())
	st := b.State()
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 0, st.AsymmetricFailures)
	assert.Empty(t, st.Reason)
}

func TestNoAutomaticResume(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxConsecutiveFailures: 1, AsymmetricThreshold: 1})
	ctx := context.Background()

	b.RecordFailure(ctx, "x")
	require.True(t, b.IsPaused())

	// Successes after a trip must not unpause.
	b.RecordSuccess()
	b.RecordSuccess()
	assert.True(t, b.IsPaused())
}

func TestTripOnlyAlertsOnce(t *testing.T) {
	b, alerts := newTestBreaker(Config{MaxConsecutiveFailures: 1, AsymmetricThreshold: 1})
	ctx := context.Background()

	b.RecordFailure(ctx, "x")
	b.RecordFailure(ctx, "x")
	b.RecordAsymmetric(ctx, "y")
	assert.Len(t, alerts.critical, 1)
}
