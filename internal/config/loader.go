package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CROSSARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Match ──
	setFloat64(&cfg.Match.AutoApproveThreshold, "CROSSARB_MATCH_AUTO_APPROVE_THRESHOLD")
	setFloat64(&cfg.Match.ReviewThreshold, "CROSSARB_MATCH_REVIEW_THRESHOLD")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinProfitPct, "CROSSARB_DETECTOR_MIN_PROFIT_PCT")
	setFloat64(&cfg.Detector.MaxQuantityPerTrade, "CROSSARB_DETECTOR_MAX_QUANTITY_PER_TRADE")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxTotalExposureUSD, "CROSSARB_RISK_MAX_TOTAL_EXPOSURE_USD")
	setFloat64(&cfg.Risk.MaxPerEventExposureUSD, "CROSSARB_RISK_MAX_PER_EVENT_EXPOSURE_USD")
	setFloat64(&cfg.Risk.MaxImbalanceUSD, "CROSSARB_RISK_MAX_IMBALANCE_USD")
	setFloat64(&cfg.Risk.DailyLossLimitUSD, "CROSSARB_RISK_DAILY_LOSS_LIMIT_USD")
	setFloat64(&cfg.Risk.MinLiquidityDepth, "CROSSARB_RISK_MIN_LIQUIDITY_DEPTH")

	// ── Breaker ──
	setInt(&cfg.Breaker.MaxConsecutiveFailures, "CROSSARB_BREAKER_MAX_CONSECUTIVE_FAILURES")
	setInt(&cfg.Breaker.AsymmetricThreshold, "CROSSARB_BREAKER_ASYMMETRIC_THRESHOLD")

	// ── Exec ──
	setDuration(&cfg.Exec.OrderTimeout, "CROSSARB_EXEC_ORDER_TIMEOUT")
	setFloat64(&cfg.Exec.MaxSlippagePct, "CROSSARB_EXEC_MAX_SLIPPAGE_PCT")

	// ── Engine ──
	setDuration(&cfg.Engine.CycleInterval, "CROSSARB_ENGINE_CYCLE_INTERVAL")
	setDuration(&cfg.Engine.BookMaxAge, "CROSSARB_ENGINE_BOOK_MAX_AGE")
	setInt(&cfg.Engine.FetchRetries, "CROSSARB_ENGINE_FETCH_RETRIES")
	setDuration(&cfg.Engine.FetchBackoff, "CROSSARB_ENGINE_FETCH_BACKOFF")
	setInt(&cfg.Engine.ConnectivityFailureLimit, "CROSSARB_ENGINE_CONNECTIVITY_FAILURE_LIMIT")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "CROSSARB_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "CROSSARB_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "CROSSARB_KALSHI_BASE_URL")
	setFloat64(&cfg.Kalshi.RateLimitPerSec, "CROSSARB_KALSHI_RATE_LIMIT_PER_SEC")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "CROSSARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "CROSSARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "CROSSARB_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.ApiKey, "CROSSARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "CROSSARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.Passphrase, "CROSSARB_POLYMARKET_PASSPHRASE")
	setStr(&cfg.Polymarket.FunderAddress, "CROSSARB_POLYMARKET_FUNDER_ADDRESS")
	setFloat64(&cfg.Polymarket.RateLimitPerSec, "CROSSARB_POLYMARKET_RATE_LIMIT_PER_SEC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CROSSARB_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CROSSARB_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "CROSSARB_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
