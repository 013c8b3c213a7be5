// Package config defines the top-level configuration for the triangular
// arbitrage engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRIARB_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Engine   EngineConfig   `toml:"engine"`
	Graph    GraphConfig    `toml:"graph"`
	Depth    DepthConfig    `toml:"depth"`
	Rank     RankConfig     `toml:"rank"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds exchange REST and streaming endpoints.
type ExchangeConfig struct {
	RestHost string `toml:"rest_host"`
	WsHost   string `toml:"ws_host"`
	// RestRateLimit is the sustained requests-per-second budget for the
	// REST client.
	RestRateLimit float64 `toml:"rest_rate_limit"`
}

// EngineConfig holds scan-loop and profit-calculation parameters.
type EngineConfig struct {
	// TickInterval is the period of the scan loop.
	TickInterval duration `toml:"tick_interval"`
	// StartAmount is the simulated trade size in the anchor currency.
	StartAmount float64 `toml:"start_amount"`
	// FeeRate is the per-leg taker fee as a fraction (0.001 = 0.1%).
	FeeRate float64 `toml:"fee_rate"`
	// SafetyMarginPct is the extra edge, as a fraction of the start
	// amount, required on top of break-even.
	SafetyMarginPct float64 `toml:"safety_margin_pct"`
	// MinProfit is the minimum absolute profit in the anchor currency.
	MinProfit float64 `toml:"min_profit"`
	// RoughEdgePct is the minimum top-of-book profit fraction a loop must
	// show before it is promoted to depth confirmation.
	RoughEdgePct float64 `toml:"rough_edge_pct"`
	// MaxCandidates bounds the number of VWAP confirmations per tick.
	MaxCandidates int      `toml:"max_candidates"`
	QuoteMaxAge   duration `toml:"quote_max_age"`
	BookMaxAge    duration `toml:"book_max_age"`
	// Cooldown suppresses repeat ledger entries for a loop whose
	// opportunity persists across ticks.
	Cooldown  duration `toml:"cooldown"`
	LoopFile  string   `toml:"loop_file"`
	LedgerCSV string   `toml:"ledger_csv"`
}

// GraphConfig holds loop-construction parameters.
type GraphConfig struct {
	// Anchors are the settlement currencies loops start and end in.
	// Cross-anchor loops are built for every unordered pair of anchors.
	Anchors []string `toml:"anchors"`
	// RebuildInterval is how often the market graph is refreshed in scan
	// mode. Zero disables periodic rebuilds.
	RebuildInterval duration `toml:"rebuild_interval"`
}

// DepthConfig holds depth-pool parameters.
type DepthConfig struct {
	// MaxSymbols bounds the number of concurrent depth subscriptions.
	MaxSymbols int `toml:"max_symbols"`
	// Levels is the number of book levels per snapshot (5, 10, or 20).
	Levels int `toml:"levels"`
	// UpdateMs is the server-side snapshot interval (100 or 1000).
	UpdateMs int `toml:"update_ms"`
}

// RankConfig holds symbol-prioritization heuristics.
type RankConfig struct {
	// Majors are symbols treated as high-liquidity pairs.
	Majors []string `toml:"majors"`
	// SettlementSuffixes are quote-asset suffixes that boost a symbol's
	// score (e.g. "USDT").
	SettlementSuffixes []string `toml:"settlement_suffixes"`
}

// ServerConfig holds the read-only status API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger store.
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

// RedisConfig holds Redis connection parameters for the signal bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for ledger archival.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	ArchiveEvery   duration `toml:"archive_every"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "500ms", "3s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "100ms" or "3s".
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
			RestHost:      "https://api.binance.com",
			WsHost:        "wss://stream.binance.com:9443",
			RestRateLimit: 10,
		},
		Engine: EngineConfig{
			TickInterval:    duration{500 * time.Millisecond},
			StartAmount:     100.0,
			FeeRate:         0.001,
			SafetyMarginPct: 0.0005,
			MinProfit:       0.05,
			RoughEdgePct:    0.0002,
			MaxCandidates:   10,
			QuoteMaxAge:     duration{5 * time.Second},
			BookMaxAge:      duration{3 * time.Second},
			Cooldown:        duration{30 * time.Second},
			LoopFile:        "loops.json",
			LedgerCSV:       "trades.csv",
		},
		Graph: GraphConfig{
			Anchors:         []string{"USDT", "USDC"},
			RebuildInterval: duration{30 * time.Minute},
		},
		Depth: DepthConfig{
			MaxSymbols: 20,
			Levels:     20,
			UpdateMs:   100,
		},
		Rank: RankConfig{
			Majors: []string{
				"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT",
				"ETHBTC", "BNBBTC", "SOLBTC",
			},
			SettlementSuffixes: []string{"USDT", "USDC", "BTC", "ETH", "BNB"},
		},
		Server: ServerConfig{
			Enabled: false,
			Port:    8080,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "triarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "triarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
			ArchiveEvery:   duration{1 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_recorded", "feed_disconnected", "error"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":        true,
	"monitor":     true,
	"build-loops": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, monitor, build-loops)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange endpoints
	if c.Exchange.RestHost == "" {
		errs = append(errs, "exchange: rest_host must not be empty")
	}
	if c.Exchange.WsHost == "" {
		errs = append(errs, "exchange: ws_host must not be empty")
	}
	if c.Exchange.RestRateLimit <= 0 {
		errs = append(errs, "exchange: rest_rate_limit must be > 0")
	}

	// Engine
	if c.Engine.TickInterval.Duration < 100*time.Millisecond || c.Engine.TickInterval.Duration > 3*time.Second {
		errs = append(errs, fmt.Sprintf("engine: tick_interval must be between 100ms and 3s, got %s", c.Engine.TickInterval.Duration))
	}
	if c.Engine.StartAmount <= 0 {
		errs = append(errs, "engine: start_amount must be > 0")
	}
	if c.Engine.FeeRate < 0 || c.Engine.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("engine: fee_rate must be in [0, 1), got %g", c.Engine.FeeRate))
	}
	if c.Engine.SafetyMarginPct < 0 {
		errs = append(errs, "engine: safety_margin_pct must be >= 0")
	}
	if c.Engine.MinProfit < 0 {
		errs = append(errs, "engine: min_profit must be >= 0")
	}
	if c.Engine.MaxCandidates < 1 {
		errs = append(errs, "engine: max_candidates must be >= 1")
	}
	if c.Engine.QuoteMaxAge.Duration <= 0 {
		errs = append(errs, "engine: quote_max_age must be > 0")
	}
	if c.Engine.LoopFile == "" {
		errs = append(errs, "engine: loop_file must not be empty")
	}

	// Graph
	if len(c.Graph.Anchors) == 0 {
		errs = append(errs, "graph: at least one anchor currency is required")
	}

	// Depth
	if c.Depth.MaxSymbols < 1 {
		errs = append(errs, "depth: max_symbols must be >= 1")
	}
	switch c.Depth.Levels {
	case 5, 10, 20:
	default:
		errs = append(errs, fmt.Sprintf("depth: levels must be 5, 10, or 20, got %d", c.Depth.Levels))
	}
	switch c.Depth.UpdateMs {
	case 100, 1000:
	default:
		errs = append(errs, fmt.Sprintf("depth: update_ms must be 100 or 1000, got %d", c.Depth.UpdateMs))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
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
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
