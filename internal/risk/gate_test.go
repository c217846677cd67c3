package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossarb/engine/internal/domain"
)

func testGate(cfg Config) *Gate {
	return NewGate(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func defaultCfg() Config {
	return Config{
		MaxTotalExposureUSD:    1000,
		MaxPerEventExposureUSD: 200,
		MaxImbalanceUSD:        50,
		DailyLossLimitUSD:      100,
		MinProfitPct:           0.03,
		MinLiquidityDepth:      10,
		MaxQuantityPerTrade:    100,
	}
}

func testOpp(qty float64) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:            "opp-1",
		MappingID:     "map-1",
		BuyVenue:      domain.VenueKalshi,
		BuyQuestionID: "k-1",
		SellVenue:     domain.VenuePolymarket,
		SellQuestion:  "p-1",
		BuyPrice:      0.40,
		SellPrice:     0.50,
		MaxQuantity:   qty,
		GrossSpread:   0.10,
		NetProfit:     0.08,
		DetectedAt:    time.Now().UTC(),
	}
}

func openPosition(venue domain.Venue, questionID string, side domain.OrderSide, price, qty float64) domain.Position {
	return domain.Position{
		Venue:         venue,
		QuestionID:    questionID,
		Side:          side,
		AvgEntryPrice: price,
		Quantity:      qty,
		Status:        domain.PositionStatusOpen,
	}
}

func TestCheck_ApprovesCleanOpportunity(t *testing.T) {
	g := testGate(defaultCfg())
	d := g.Check(testOpp(50), nil, 0)

	assert.True(t, d.Approved)
	assert.Empty(t, d.Reasons)
	assert.Equal(t, 50.0, d.SuggestedQuantity)
}

func TestCheck_SuggestedQuantityCapped(t *testing.T) {
	g := testGate(defaultCfg())
	d := g.Check(testOpp(250), nil, 0)

	assert.True(t, d.Approved)
	assert.Equal(t, 100.0, d.SuggestedQuantity)
}

func TestCheck_TotalExposureCap(t *testing.T) {
	g := testGate(defaultCfg())
	// 990 USD already deployed elsewhere; new trade is 0.40*50 = 20 USD.
	positions := []domain.Position{
		openPosition(domain.VenueKalshi, "other-q", domain.OrderSideBuy, 0.99, 1000),
	}
	d := g.Check(testOpp(50), positions, 0)

	require.False(t, d.Approved)
	assert.Contains(t, d.Reasons[len(d.Reasons)-1], "total exposure")
}

func TestCheck_TotalExposureNeverExceeded(t *testing.T) {
	// Processing opportunities sequentially, the cumulative approved notional
	// must never pass the cap regardless of ordering.
	cfg := defaultCfg()
	cfg.MaxPerEventExposureUSD = 0
	cfg.MaxImbalanceUSD = 0
	g := testGate(cfg)

	var positions []domain.Position
	var deployed float64
	for i := 0; i < 200; i++ {
		opp := testOpp(100)
		d := g.Check(opp, positions, 0)
		if !d.Approved {
			break
		}
		notional := opp.BuyPrice * d.SuggestedQuantity
		deployed += notional
		positions = append(positions,
			openPosition(opp.BuyVenue, opp.BuyQuestionID, domain.OrderSideBuy, opp.BuyPrice, d.SuggestedQuantity))
	}
	assert.LessOrEqual(t, deployed, cfg.MaxTotalExposureUSD)
	assert.Greater(t, deployed, 0.0)
}

func TestCheck_PerEventExposureCap(t *testing.T) {
	g := testGate(defaultCfg())
	positions := []domain.Position{
		openPosition(domain.VenueKalshi, "k-1", domain.OrderSideBuy, 0.40, 460),
	}
	// Event already carries 184 USD; 20 more breaches the 200 cap.
	d := g.Check(testOpp(50), positions, 0)

	require.False(t, d.Approved)
	assert.Contains(t, d.Reasons[len(d.Reasons)-1], "event exposure")
}

func TestCheck_ImbalanceCap(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxPerEventExposureUSD = 0 // isolate the imbalance check
	g := testGate(cfg)
	// Unhedged buy-side stub from a previous asymmetric event: 60 USD net.
	positions := []domain.Position{
		openPosition(domain.VenueKalshi, "k-1", domain.OrderSideBuy, 0.60, 100),
	}
	d := g.Check(testOpp(50), positions, 0)

	require.False(t, d.Approved)
	assert.Contains(t, d.Reasons[len(d.Reasons)-1], "imbalance")
}

func TestCheck_HedgedEventPassesImbalance(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxPerEventExposureUSD = 0
	g := testGate(cfg)
	// Both legs open and offsetting: net imbalance is zero.
	positions := []domain.Position{
		openPosition(domain.VenueKalshi, "k-1", domain.OrderSideBuy, 0.40, 100),
		openPosition(domain.VenuePolymarket, "p-1", domain.OrderSideSell, 0.40, 100),
	}
	d := g.Check(testOpp(50), positions, 0)
	assert.True(t, d.Approved)
}

func TestCheck_DailyLossRejectsAllTrades(t *testing.T) {
	g := testGate(defaultCfg())
	d := g.Check(testOpp(50), nil, -100)

	require.False(t, d.Approved)
	assert.Contains(t, d.Reasons[len(d.Reasons)-1], "daily loss")
}

func TestCheck_MinProfitPct(t *testing.T) {
	g := testGate(defaultCfg())
	opp := testOpp(50)
	opp.NetProfit = 0.008 // 2% of the 0.40 entry, below the 3% floor

	d := g.Check(opp, nil, 0)
	require.False(t, d.Approved)
	assert.Contains(t, d.Reasons[len(d.Reasons)-1], "net profit")
}

func TestCheck_ThinLiquidityWarnsOnly(t *testing.T) {
	g := testGate(defaultCfg())
	d := g.Check(testOpp(5), nil, 0)

	assert.True(t, d.Approved)
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "warning: thin liquidity")
}

func TestCheck_WarningSurvivesRejection(t *testing.T) {
	g := testGate(defaultCfg())
	d := g.Check(testOpp(5), nil, -500)

	assert.False(t, d.Approved)
	require.Len(t, d.Reasons, 2)
	assert.Contains(t, d.Reasons[0], "warning")
	assert.Contains(t, d.Reasons[1], "daily loss")
}

func TestCheck_ClosedPositionsIgnored(t *testing.T) {
	g := testGate(defaultCfg())
	closed := openPosition(domain.VenueKalshi, "k-1", domain.OrderSideBuy, 0.99, 10000)
	closed.Status = domain.PositionStatusClosed

	d := g.Check(testOpp(50), []domain.Position{closed}, 0)
	assert.True(t, d.Approved)
}
