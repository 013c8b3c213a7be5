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
// built-in defaults, applies TRIARB_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TRIARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.RestHost, "TRIARB_EXCHANGE_REST_HOST")
	setStr(&cfg.Exchange.WsHost, "TRIARB_EXCHANGE_WS_HOST")
	setFloat64(&cfg.Exchange.RestRateLimit, "TRIARB_EXCHANGE_REST_RATE_LIMIT")

	// ── Engine ──
	setDuration(&cfg.Engine.TickInterval, "TRIARB_ENGINE_TICK_INTERVAL")
	setFloat64(&cfg.Engine.StartAmount, "TRIARB_ENGINE_START_AMOUNT")
	setFloat64(&cfg.Engine.FeeRate, "TRIARB_ENGINE_FEE_RATE")
	setFloat64(&cfg.Engine.SafetyMarginPct, "TRIARB_ENGINE_SAFETY_MARGIN_PCT")
	setFloat64(&cfg.Engine.MinProfit, "TRIARB_ENGINE_MIN_PROFIT")
	setFloat64(&cfg.Engine.RoughEdgePct, "TRIARB_ENGINE_ROUGH_EDGE_PCT")
	setInt(&cfg.Engine.MaxCandidates, "TRIARB_ENGINE_MAX_CANDIDATES")
	setDuration(&cfg.Engine.QuoteMaxAge, "TRIARB_ENGINE_QUOTE_MAX_AGE")
	setDuration(&cfg.Engine.BookMaxAge, "TRIARB_ENGINE_BOOK_MAX_AGE")
	setDuration(&cfg.Engine.Cooldown, "TRIARB_ENGINE_COOLDOWN")
	setStr(&cfg.Engine.LoopFile, "TRIARB_ENGINE_LOOP_FILE")
	setStr(&cfg.Engine.LedgerCSV, "TRIARB_ENGINE_LEDGER_CSV")

	// ── Graph ──
	setStringSlice(&cfg.Graph.Anchors, "TRIARB_GRAPH_ANCHORS")
	setDuration(&cfg.Graph.RebuildInterval, "TRIARB_GRAPH_REBUILD_INTERVAL")

	// ── Depth ──
	setInt(&cfg.Depth.MaxSymbols, "TRIARB_DEPTH_MAX_SYMBOLS")
	setInt(&cfg.Depth.Levels, "TRIARB_DEPTH_LEVELS")
	setInt(&cfg.Depth.UpdateMs, "TRIARB_DEPTH_UPDATE_MS")

	// ── Rank ──
	setStringSlice(&cfg.Rank.Majors, "TRIARB_RANK_MAJORS")
	setStringSlice(&cfg.Rank.SettlementSuffixes, "TRIARB_RANK_SETTLEMENT_SUFFIXES")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRIARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRIARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRIARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRIARB_SERVER_CORS_ORIGINS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRIARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRIARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRIARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRIARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRIARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRIARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRIARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRIARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRIARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRIARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRIARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRIARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRIARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRIARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRIARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRIARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRIARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRIARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRIARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRIARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRIARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRIARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRIARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRIARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRIARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRIARB_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveEvery, "TRIARB_S3_ARCHIVE_EVERY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRIARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRIARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRIARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRIARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRIARB_MODE")
	setStr(&cfg.LogLevel, "TRIARB_LOG_LEVEL")
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
