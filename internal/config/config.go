// Package config defines the top-level configuration for the cross-venue
// arbitrage engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CROSSARB_* environment variables.
type Config struct {
	Match      MatchConfig      `toml:"match"`
	Detector   DetectorConfig   `toml:"detector"`
	Risk       RiskConfig       `toml:"risk"`
	Breaker    BreakerConfig    `toml:"breaker"`
	Exec       ExecConfig       `toml:"exec"`
	Engine     EngineConfig     `toml:"engine"`
	Fees       FeesConfig       `toml:"fees"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// MatchConfig holds similarity weights and classification thresholds.
type MatchConfig struct {
	WeightKeyword  float64 `toml:"weight_keyword"`
	WeightToken    float64 `toml:"weight_token"`
	WeightFuzzy    float64 `toml:"weight_fuzzy"`
	WeightDate     float64 `toml:"weight_date"`
	WeightCategory float64 `toml:"weight_category"`

	AutoApproveThreshold float64 `toml:"auto_approve_threshold"`
	ReviewThreshold      float64 `toml:"review_threshold"`
}

// DetectorConfig holds spread detection thresholds.
type DetectorConfig struct {
	MinProfitPct        float64 `toml:"min_profit_pct"`
	MaxQuantityPerTrade float64 `toml:"max_quantity_per_trade"`
}

// RiskConfig holds the pre-trade risk limits.
type RiskConfig struct {
	MaxTotalExposureUSD    float64 `toml:"max_total_exposure_usd"`
	MaxPerEventExposureUSD float64 `toml:"max_per_event_exposure_usd"`
	MaxImbalanceUSD        float64 `toml:"max_imbalance_usd"`
	DailyLossLimitUSD      float64 `toml:"daily_loss_limit_usd"`
	MinLiquidityDepth      float64 `toml:"min_liquidity_depth"`
}

// BreakerConfig holds circuit-breaker trip thresholds.
type BreakerConfig struct {
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
	AsymmetricThreshold    int `toml:"asymmetric_threshold"`
}

// ExecConfig holds execution parameters.
type ExecConfig struct {
	OrderTimeout   duration `toml:"order_timeout"`
	MaxSlippagePct float64  `toml:"max_slippage_pct"`
}

// EngineConfig holds detection-loop parameters.
type EngineConfig struct {
	CycleInterval            duration `toml:"cycle_interval"`
	BookMaxAge               duration `toml:"book_max_age"`
	FetchRetries             int      `toml:"fetch_retries"`
	FetchBackoff             duration `toml:"fetch_backoff"`
	ConnectivityFailureLimit int      `toml:"connectivity_failure_limit"`
}

// FeeConfig selects and parameterizes one venue's fee model.
type FeeConfig struct {
	// Model is one of "none", "flat", "quadratic", "capped_profit".
	Model   string  `toml:"model"`
	RateBps float64 `toml:"rate_bps"` // flat: fee = price * rate_bps/10000
	Rate    float64 `toml:"rate"`     // quadratic: rate*p*(1-p); capped_profit: profit*rate
	CapBps  float64 `toml:"cap_bps"`  // capped_profit ceiling
}

// FeesConfig holds the per-venue fee models.
type FeesConfig struct {
	Kalshi     FeeConfig `toml:"kalshi"`
	Polymarket FeeConfig `toml:"polymarket"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	ApiKey            string   `toml:"api_key"`
	RsaPrivateKeyPath string   `toml:"rsa_private_key_path"`
	BaseURL           string   `toml:"base_url"`
	RateLimitPerSec   float64  `toml:"rate_limit_per_sec"`
	RequestTimeout    duration `toml:"request_timeout"`
}

// PolymarketConfig holds Polymarket API endpoints and CLOB credentials. The
// api_key/api_secret/passphrase triple is a pre-derived CLOB API key; the
// engine never touches wallet keys.
type PolymarketConfig struct {
	ClobHost        string   `toml:"clob_host"`
	GammaHost       string   `toml:"gamma_host"`
	WsHost          string   `toml:"ws_host"`
	ApiKey          string   `toml:"api_key"`
	ApiSecret       string   `toml:"api_secret"`
	Passphrase      string   `toml:"passphrase"`
	FunderAddress   string   `toml:"funder_address"`
	RateLimitPerSec float64  `toml:"rate_limit_per_sec"`
	RequestTimeout  duration `toml:"request_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds execution-history archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Match: MatchConfig{
			WeightKeyword:        0.40,
			WeightToken:          0.30,
			WeightFuzzy:          0.15,
			WeightDate:           0.10,
			WeightCategory:       0.05,
			AutoApproveThreshold: 0.75,
			ReviewThreshold:      0.60,
		},
		Detector: DetectorConfig{
			MinProfitPct:        0.03,
			MaxQuantityPerTrade: 100,
		},
		Risk: RiskConfig{
			MaxTotalExposureUSD:    1000,
			MaxPerEventExposureUSD: 200,
			MaxImbalanceUSD:        50,
			DailyLossLimitUSD:      100,
			MinLiquidityDepth:      10,
		},
		Breaker: BreakerConfig{
			MaxConsecutiveFailures: 3,
			AsymmetricThreshold:    1,
		},
		Exec: ExecConfig{
			OrderTimeout:   duration{5 * time.Second},
			MaxSlippagePct: 0.01,
		},
		Engine: EngineConfig{
			CycleInterval:            duration{10 * time.Second},
			BookMaxAge:               duration{5 * time.Second},
			FetchRetries:             2,
			FetchBackoff:             duration{500 * time.Millisecond},
			ConnectivityFailureLimit: 5,
		},
		Fees: FeesConfig{
			// Kalshi charges roughly rate*p*(1-p) per contract.
			Kalshi:     FeeConfig{Model: "quadratic", Rate: 0.07},
			Polymarket: FeeConfig{Model: "none"},
		},
		Kalshi: KalshiConfig{
			BaseURL:         "https://api.elections.kalshi.com/trade-api/v2",
			RateLimitPerSec: 10,
			RequestTimeout:  duration{10 * time.Second},
		},
		Polymarket: PolymarketConfig{
			ClobHost:        "https://clob.polymarket.com",
			GammaHost:       "https://gamma-api.polymarket.com",
			WsHost:          "wss://ws-subscriptions-clob.polymarket.com",
			RateLimitPerSec: 10,
			RequestTimeout:  duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "execution", "breaker", "error"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"match":   true,
	"trade":   true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validFeeModels enumerates the accepted values for FeeConfig.Model.
var validFeeModels = map[string]bool{
	"none":          true,
	"flat":          true,
	"quadratic":     true,
	"capped_profit": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. The process must refuse to
// start on any validation failure.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: match, trade, monitor, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Match weights must be non-negative and sum to 1.
	ws := []float64{c.Match.WeightKeyword, c.Match.WeightToken, c.Match.WeightFuzzy, c.Match.WeightDate, c.Match.WeightCategory}
	var sum float64
	for _, w := range ws {
		if w < 0 {
			errs = append(errs, "match: component weights must be >= 0")
			break
		}
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		errs = append(errs, fmt.Sprintf("match: component weights sum to %.4f, want 1.0", sum))
	}
	if c.Match.ReviewThreshold <= 0 || c.Match.AutoApproveThreshold > 1 ||
		c.Match.ReviewThreshold >= c.Match.AutoApproveThreshold {
		errs = append(errs, fmt.Sprintf("match: thresholds must satisfy 0 < review < auto_approve <= 1, got %.2f/%.2f",
			c.Match.ReviewThreshold, c.Match.AutoApproveThreshold))
	}

	// Detector
	if c.Detector.MinProfitPct <= 0 {
		errs = append(errs, "detector: min_profit_pct must be > 0")
	}
	if c.Detector.MaxQuantityPerTrade <= 0 {
		errs = append(errs, "detector: max_quantity_per_trade must be > 0")
	}

	// Risk
	if c.Risk.MaxTotalExposureUSD <= 0 {
		errs = append(errs, "risk: max_total_exposure_usd must be > 0")
	}
	if c.Risk.MaxPerEventExposureUSD < 0 {
		errs = append(errs, "risk: max_per_event_exposure_usd must be >= 0")
	}
	if c.Risk.DailyLossLimitUSD < 0 {
		errs = append(errs, "risk: daily_loss_limit_usd must be >= 0")
	}

	// Breaker
	if c.Breaker.MaxConsecutiveFailures < 1 {
		errs = append(errs, "breaker: max_consecutive_failures must be >= 1")
	}
	if c.Breaker.AsymmetricThreshold < 1 {
		errs = append(errs, "breaker: asymmetric_threshold must be >= 1")
	}

	// Exec
	if c.Exec.OrderTimeout.Duration <= 0 {
		errs = append(errs, "exec: order_timeout must be > 0")
	}
	if c.Exec.MaxSlippagePct < 0 || c.Exec.MaxSlippagePct >= 1 {
		errs = append(errs, fmt.Sprintf("exec: max_slippage_pct must be in [0,1), got %.4f", c.Exec.MaxSlippagePct))
	}

	// Engine
	if c.Engine.CycleInterval.Duration <= 0 {
		errs = append(errs, "engine: cycle_interval must be > 0")
	}
	if c.Engine.BookMaxAge.Duration <= 0 {
		errs = append(errs, "engine: book_max_age must be > 0")
	}
	if c.Engine.FetchRetries < 0 {
		errs = append(errs, "engine: fetch_retries must be >= 0")
	}

	// Fees
	for venue, fc := range map[string]FeeConfig{"kalshi": c.Fees.Kalshi, "polymarket": c.Fees.Polymarket} {
		if !validFeeModels[fc.Model] {
			errs = append(errs, fmt.Sprintf("fees: unknown model %q for %s (valid: none, flat, quadratic, capped_profit)", fc.Model, venue))
		}
	}

	// Venue credentials are required for trading modes only.
	needsVenues := c.Mode == "trade" || c.Mode == "full"
	if needsVenues {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for mode "+c.Mode)
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for mode "+c.Mode)
		}
		if c.Polymarket.ApiKey == "" || c.Polymarket.ApiSecret == "" || c.Polymarket.Passphrase == "" {
			errs = append(errs, "polymarket: api_key, api_secret and passphrase are required for mode "+c.Mode)
		}
	}
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
