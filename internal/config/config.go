// Package config defines the top-level configuration for the trap bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRAPBOT_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Trading  TradingConfig  `toml:"trading"`
	Paper    PaperConfig    `toml:"paper"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds exchange endpoints, credentials and market naming.
type ExchangeConfig struct {
	Name string `toml:"name"`

	Key string `toml:"key"`
	// Secret is the plaintext API secret. Alternatively set
	// encrypted_secret_path plus secret_password.
	Secret              string `toml:"secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`

	RESTURL string `toml:"rest_url"`
	WSURL   string `toml:"ws_url"`

	// Pair is the display pair, e.g. "XBT/EUR". WirePair is the exchange's
	// REST pair name ("XXBTZEUR"); BaseAsset and QuoteAsset are the ledger
	// codes used by the balance endpoint.
	Pair       string `toml:"pair"`
	WirePair   string `toml:"wire_pair"`
	BaseAsset  string `toml:"base_asset"`
	QuoteAsset string `toml:"quote_asset"`

	DepthCount int `toml:"depth_count"`
}

// TradingConfig holds the strategy parameters.
type TradingConfig struct {
	// OperativeAmount is the fixed base-currency amount the bot works with.
	OperativeAmount float64 `toml:"operative_amount"`

	// Wall sizing bounds.
	MinVolume float64 `toml:"min_volume"`
	MaxVolume float64 `toml:"max_volume"`

	// Cycle interval bounds.
	MinInterval duration `toml:"min_interval"`
	MaxInterval duration `toml:"max_interval"`

	// MinDifference is the required sell/buy price separation; MinPriceDelta
	// suppresses order churn below this price move; PriceTick is the
	// exchange's price increment.
	MinDifference float64 `toml:"min_difference"`
	MinPriceDelta float64 `toml:"min_price_delta"`
	PriceTick     float64 `toml:"price_tick"`

	// Activity estimation bounds.
	MinTrades    int      `toml:"min_trades"`
	MaxTrades    int      `toml:"max_trades"`
	MinAvgVolume float64  `toml:"min_avg_volume"`
	MaxAvgVolume float64  `toml:"max_avg_volume"`
	Window       duration `toml:"window"`

	// Epsilon is the tolerance when comparing order amounts.
	Epsilon float64 `toml:"epsilon"`
}

// PaperConfig holds the simulated starting balances for paper mode.
type PaperConfig struct {
	StartBase  float64 `toml:"start_base"`
	StartQuote float64 `toml:"start_quote"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// ArchiveConfig controls history archival to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "90s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
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
		Exchange: ExchangeConfig{
			Name:       "kraken",
			RESTURL:    "https://api.kraken.com",
			WSURL:      "wss://ws.kraken.com",
			Pair:       "XBT/EUR",
			WirePair:   "XXBTZEUR",
			BaseAsset:  "XXBT",
			QuoteAsset: "ZEUR",
			DepthCount: 100,
		},
		Trading: TradingConfig{
			OperativeAmount: 0.1,
			MinVolume:       0.5,
			MaxVolume:       5.0,
			MinInterval:     duration{20 * time.Second},
			MaxInterval:     duration{2 * time.Minute},
			MinDifference:   2.0,
			MinPriceDelta:   0.5,
			PriceTick:       0.1,
			MinTrades:       2,
			MaxTrades:       30,
			MinAvgVolume:    0.1,
			MaxAvgVolume:    2.0,
			Window:          duration{90 * time.Second},
			Epsilon:         1e-5,
		},
		Paper: PaperConfig{
			StartBase:  1.0,
			StartQuote: 10_000,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "trapbot",
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
			Bucket:         "trapbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "order_partial", "bot_fatal"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange: credentials are required only when real orders go out.
	if c.Exchange.Pair == "" {
		errs = append(errs, "exchange: pair must not be empty")
	}
	if c.Exchange.WirePair == "" {
		errs = append(errs, "exchange: wire_pair must not be empty")
	}
	if c.Mode == "trade" {
		if c.Exchange.Key == "" {
			errs = append(errs, "exchange: key is required for trade mode")
		}
		if c.Exchange.Secret == "" && c.Exchange.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either secret or encrypted_secret_path must be set for trade mode")
		}
		if c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
			errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
		}
	}

	// Trading
	if c.Trading.OperativeAmount <= 0 {
		errs = append(errs, "trading: operative_amount must be > 0")
	}
	if c.Trading.MinVolume <= 0 {
		errs = append(errs, "trading: min_volume must be > 0")
	}
	if c.Trading.MaxVolume < c.Trading.MinVolume {
		errs = append(errs, "trading: max_volume must be >= min_volume")
	}
	if c.Trading.MinInterval.Duration <= 0 {
		errs = append(errs, "trading: min_interval must be > 0")
	}
	if c.Trading.MaxInterval.Duration < c.Trading.MinInterval.Duration {
		errs = append(errs, "trading: max_interval must be >= min_interval")
	}
	if c.Trading.MinDifference <= 0 {
		errs = append(errs, "trading: min_difference must be > 0")
	}
	if c.Trading.PriceTick <= 0 {
		errs = append(errs, "trading: price_tick must be > 0")
	}
	if c.Trading.MinPriceDelta < 0 {
		errs = append(errs, "trading: min_price_delta must be >= 0")
	}
	if c.Trading.MinTrades < 0 {
		errs = append(errs, "trading: min_trades must be >= 0")
	}
	if c.Trading.MaxTrades <= c.Trading.MinTrades {
		errs = append(errs, "trading: max_trades must be > min_trades")
	}
	if c.Trading.MinAvgVolume < 0 {
		errs = append(errs, "trading: min_avg_volume must be >= 0")
	}
	if c.Trading.MaxAvgVolume <= c.Trading.MinAvgVolume {
		errs = append(errs, "trading: max_avg_volume must be > min_avg_volume")
	}
	if c.Trading.Window.Duration <= 0 {
		errs = append(errs, "trading: window must be > 0")
	}

	// Paper
	if c.Mode == "paper" {
		if c.Paper.StartBase < c.Trading.OperativeAmount {
			errs = append(errs, "paper: start_base must cover trading.operative_amount")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
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
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
