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
// built-in defaults, applies TRAPBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TRAPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.Name, "TRAPBOT_EXCHANGE_NAME")
	setStr(&cfg.Exchange.Key, "TRAPBOT_EXCHANGE_KEY")
	setStr(&cfg.Exchange.Secret, "TRAPBOT_EXCHANGE_SECRET")
	setStr(&cfg.Exchange.EncryptedSecretPath, "TRAPBOT_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "TRAPBOT_EXCHANGE_SECRET_PASSWORD")
	setStr(&cfg.Exchange.RESTURL, "TRAPBOT_EXCHANGE_REST_URL")
	setStr(&cfg.Exchange.WSURL, "TRAPBOT_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.Pair, "TRAPBOT_EXCHANGE_PAIR")
	setStr(&cfg.Exchange.WirePair, "TRAPBOT_EXCHANGE_WIRE_PAIR")
	setStr(&cfg.Exchange.BaseAsset, "TRAPBOT_EXCHANGE_BASE_ASSET")
	setStr(&cfg.Exchange.QuoteAsset, "TRAPBOT_EXCHANGE_QUOTE_ASSET")
	setInt(&cfg.Exchange.DepthCount, "TRAPBOT_EXCHANGE_DEPTH_COUNT")

	// ── Trading ──
	setFloat64(&cfg.Trading.OperativeAmount, "TRAPBOT_TRADING_OPERATIVE_AMOUNT")
	setFloat64(&cfg.Trading.MinVolume, "TRAPBOT_TRADING_MIN_VOLUME")
	setFloat64(&cfg.Trading.MaxVolume, "TRAPBOT_TRADING_MAX_VOLUME")
	setDuration(&cfg.Trading.MinInterval, "TRAPBOT_TRADING_MIN_INTERVAL")
	setDuration(&cfg.Trading.MaxInterval, "TRAPBOT_TRADING_MAX_INTERVAL")
	setFloat64(&cfg.Trading.MinDifference, "TRAPBOT_TRADING_MIN_DIFFERENCE")
	setFloat64(&cfg.Trading.MinPriceDelta, "TRAPBOT_TRADING_MIN_PRICE_DELTA")
	setFloat64(&cfg.Trading.PriceTick, "TRAPBOT_TRADING_PRICE_TICK")
	setInt(&cfg.Trading.MinTrades, "TRAPBOT_TRADING_MIN_TRADES")
	setInt(&cfg.Trading.MaxTrades, "TRAPBOT_TRADING_MAX_TRADES")
	setFloat64(&cfg.Trading.MinAvgVolume, "TRAPBOT_TRADING_MIN_AVG_VOLUME")
	setFloat64(&cfg.Trading.MaxAvgVolume, "TRAPBOT_TRADING_MAX_AVG_VOLUME")
	setDuration(&cfg.Trading.Window, "TRAPBOT_TRADING_WINDOW")
	setFloat64(&cfg.Trading.Epsilon, "TRAPBOT_TRADING_EPSILON")

	// ── Paper ──
	setFloat64(&cfg.Paper.StartBase, "TRAPBOT_PAPER_START_BASE")
	setFloat64(&cfg.Paper.StartQuote, "TRAPBOT_PAPER_START_QUOTE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRAPBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRAPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRAPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRAPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRAPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRAPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRAPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRAPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRAPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRAPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRAPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRAPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRAPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRAPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRAPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRAPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRAPBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRAPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRAPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRAPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRAPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRAPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRAPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRAPBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRAPBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "TRAPBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "TRAPBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRAPBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRAPBOT_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRAPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRAPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRAPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRAPBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRAPBOT_MODE")
	setStr(&cfg.LogLevel, "TRAPBOT_LOG_LEVEL")
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
