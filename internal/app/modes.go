package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crossarb/engine/internal/breaker"
	"github.com/crossarb/engine/internal/config"
	"github.com/crossarb/engine/internal/detect"
	"github.com/crossarb/engine/internal/domain"
	"github.com/crossarb/engine/internal/engine"
	execpkg "github.com/crossarb/engine/internal/exec"
	"github.com/crossarb/engine/internal/match"
	"github.com/crossarb/engine/internal/platform/kalshi"
	"github.com/crossarb/engine/internal/platform/polymarket"
	"github.com/crossarb/engine/internal/risk"
)

// discoveryInterval is how often full mode refreshes cross-venue mappings.
const discoveryInterval = time.Hour

// MatchMode runs a single mapping discovery pass and exits. Auto-tier matches
// become active mappings; review-tier matches are stored inactive for an
// operator to approve.
func (a *App) MatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting match mode")

	connA, connB, err := a.buildConnectors()
	if err != nil {
		return err
	}

	mapper := engine.NewMapper(connA, connB, a.buildClassifier(), deps.Mappings, a.logger)
	stats, err := mapper.Discover(ctx)
	if err != nil {
		return fmt.Errorf("app: discovery: %w", err)
	}

	a.logger.InfoContext(ctx, "match mode finished",
		slog.Int("scanned_a", stats.ScannedA),
		slog.Int("scanned_b", stats.ScannedB),
		slog.Int("auto", stats.Auto),
		slog.Int("review", stats.Review),
	)
	return nil
}

// MonitorMode runs the detection loop without placing orders. Opportunities
// are logged and sent through the notifier.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runLoop(ctx, deps, true, false)
}

// TradeMode runs the detection loop with live execution against existing
// mappings. The archiver runs alongside when enabled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.runLoop(ctx, deps, false, false)
}

// FullMode runs trading plus periodic mapping discovery.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runLoop(ctx, deps, false, true)
}

// runLoop assembles the pipeline and runs the engine, the book feed, and the
// optional discovery and archival loops until the context is cancelled.
func (a *App) runLoop(ctx context.Context, deps *Dependencies, monitorOnly, withDiscovery bool) error {
	connA, connB, err := a.buildConnectors()
	if err != nil {
		return err
	}

	cb := breaker.New(breaker.Config{
		MaxConsecutiveFailures: a.cfg.Breaker.MaxConsecutiveFailures,
		AsymmetricThreshold:    a.cfg.Breaker.AsymmetricThreshold,
		DailyLossLimitUSD:      a.cfg.Risk.DailyLossLimitUSD,
	}, deps.Notifier, a.logger)

	detector := detect.NewDetector(detect.Config{
		MinProfitPct:        a.cfg.Detector.MinProfitPct,
		MaxQuantityPerTrade: a.cfg.Detector.MaxQuantityPerTrade,
	}, a.logger)

	gate := risk.NewGate(risk.Config{
		MaxTotalExposureUSD:    a.cfg.Risk.MaxTotalExposureUSD,
		MaxPerEventExposureUSD: a.cfg.Risk.MaxPerEventExposureUSD,
		MaxImbalanceUSD:        a.cfg.Risk.MaxImbalanceUSD,
		DailyLossLimitUSD:      a.cfg.Risk.DailyLossLimitUSD,
		MinProfitPct:           a.cfg.Detector.MinProfitPct,
		MinLiquidityDepth:      a.cfg.Risk.MinLiquidityDepth,
		MaxQuantityPerTrade:    a.cfg.Detector.MaxQuantityPerTrade,
	}, a.logger)

	coord := execpkg.NewCoordinator(
		map[domain.Venue]domain.MarketConnector{
			connA.Venue(): connA,
			connB.Venue(): connB,
		},
		deps.Positions,
		deps.Executions,
		deps.PnL,
		cb,
		deps.Notifier,
		execpkg.Config{
			OrderTimeout:   a.cfg.Exec.OrderTimeout.Duration,
			MaxSlippagePct: a.cfg.Exec.MaxSlippagePct,
			MinProfitPct:   a.cfg.Detector.MinProfitPct,
		},
		a.logger,
	)

	eng := engine.New(
		engine.Config{
			CycleInterval:            a.cfg.Engine.CycleInterval.Duration,
			BookMaxAge:               a.cfg.Engine.BookMaxAge.Duration,
			FetchRetries:             a.cfg.Engine.FetchRetries,
			FetchBackoff:             a.cfg.Engine.FetchBackoff.Duration,
			ConnectivityFailureLimit: a.cfg.Engine.ConnectivityFailureLimit,
			MonitorOnly:              monitorOnly,
		},
		connA, connB,
		deps.Mappings,
		deps.Positions,
		deps.PnL,
		deps.Books,
		detector,
		a.buildFeeModels(),
		gate,
		coord,
		cb,
		deps.Notifier,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	a.startBookFeed(ctx, g, deps)

	if withDiscovery {
		mapper := engine.NewMapper(connA, connB, a.buildClassifier(), deps.Mappings, a.logger)
		g.Go(func() error {
			return a.discoveryLoop(ctx, mapper)
		})
	}

	if deps.Archiver != nil {
		interval := a.cfg.Archive.Interval.Duration
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			return deps.Archiver.Run(ctx, interval, retention)
		})
	}

	return g.Wait()
}

// discoveryLoop refreshes mappings on a fixed interval, starting with one
// immediate pass so a fresh deployment has mappings before the first cycle.
func (a *App) discoveryLoop(ctx context.Context, mapper *engine.Mapper) error {
	if _, err := mapper.Discover(ctx); err != nil {
		a.logger.WarnContext(ctx, "initial discovery failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := mapper.Discover(ctx); err != nil {
				a.logger.WarnContext(ctx, "discovery failed", slog.String("error", err.Error()))
			}
		}
	}
}

// startBookFeed connects the Polymarket WebSocket feed and subscribes it to
// every active mapping's venue-B token. The feed only warms the book cache,
// so any failure here degrades to REST fetching rather than aborting the run.
func (a *App) startBookFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if a.cfg.Polymarket.WsHost == "" {
		return
	}

	active, err := deps.Mappings.LoadActive(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "book feed skipped, mappings unavailable",
			slog.String("error", err.Error()))
		return
	}
	tokenIDs := make([]string, 0, len(active))
	for _, m := range active {
		tokenIDs = append(tokenIDs, m.QuestionB)
	}
	if len(tokenIDs) == 0 {
		a.logger.InfoContext(ctx, "book feed skipped, no active mappings")
		return
	}

	feed := polymarket.NewBookFeed(
		a.cfg.Polymarket.WsHost+"/ws/market",
		deps.Books,
		a.cfg.Engine.BookMaxAge.Duration,
		a.logger,
	)
	if err := feed.Connect(ctx); err != nil {
		a.logger.WarnContext(ctx, "book feed connect failed",
			slog.String("error", err.Error()))
		return
	}
	if err := feed.Subscribe(tokenIDs); err != nil {
		a.logger.WarnContext(ctx, "book feed subscribe failed",
			slog.String("error", err.Error()))
		_ = feed.Close()
		return
	}

	g.Go(func() error {
		<-ctx.Done()
		return feed.Close()
	})
}

// buildConnectors creates both venue connectors. Venue A is Kalshi and venue B
// is Polymarket everywhere in the pipeline.
func (a *App) buildConnectors() (domain.MarketConnector, domain.MarketConnector, error) {
	connA, err := kalshi.NewClient(kalshi.Config{
		BaseURL:           a.cfg.Kalshi.BaseURL,
		ApiKeyID:          a.cfg.Kalshi.ApiKey,
		RsaPrivateKeyPath: a.cfg.Kalshi.RsaPrivateKeyPath,
		RateLimitPerSec:   a.cfg.Kalshi.RateLimitPerSec,
		RequestTimeout:    a.cfg.Kalshi.RequestTimeout.Duration,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("app: kalshi connector: %w", err)
	}

	connB := polymarket.NewClient(polymarket.Config{
		ClobHost:        a.cfg.Polymarket.ClobHost,
		GammaHost:       a.cfg.Polymarket.GammaHost,
		ApiKey:          a.cfg.Polymarket.ApiKey,
		ApiSecret:       a.cfg.Polymarket.ApiSecret,
		Passphrase:      a.cfg.Polymarket.Passphrase,
		FunderAddress:   a.cfg.Polymarket.FunderAddress,
		RateLimitPerSec: a.cfg.Polymarket.RateLimitPerSec,
		RequestTimeout:  a.cfg.Polymarket.RequestTimeout.Duration,
	}, a.logger)

	return connA, connB, nil
}

// buildClassifier assembles the match classifier from configured weights and
// thresholds.
func (a *App) buildClassifier() *match.Classifier {
	return match.NewClassifier(
		match.NewScorer(nil),
		match.Weights{
			Keyword:  a.cfg.Match.WeightKeyword,
			Token:    a.cfg.Match.WeightToken,
			Fuzzy:    a.cfg.Match.WeightFuzzy,
			Date:     a.cfg.Match.WeightDate,
			Category: a.cfg.Match.WeightCategory,
		},
		match.Thresholds{
			AutoApprove: a.cfg.Match.AutoApproveThreshold,
			Review:      a.cfg.Match.ReviewThreshold,
		},
	)
}

// buildFeeModels maps the per-venue fee configuration to detector fee models.
func (a *App) buildFeeModels() map[domain.Venue]detect.FeeModel {
	return map[domain.Venue]detect.FeeModel{
		domain.VenueKalshi:     feeModel(a.cfg.Fees.Kalshi),
		domain.VenuePolymarket: feeModel(a.cfg.Fees.Polymarket),
	}
}

func feeModel(fc config.FeeConfig) detect.FeeModel {
	switch fc.Model {
	case "flat":
		return detect.FlatRateFee{Bps: fc.RateBps}
	case "quadratic":
		return detect.QuadraticFee{Rate: fc.Rate}
	case "capped_profit":
		return detect.CappedProfitFee{Rate: fc.Rate, CapBps: fc.CapBps}
	default:
		return detect.ZeroFee{}
	}
}
