package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/triarb/internal/blob/s3"
	"github.com/alanyoungcy/triarb/internal/cache/redis"
	"github.com/alanyoungcy/triarb/internal/config"
	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/executor"
	"github.com/alanyoungcy/triarb/internal/feed"
	"github.com/alanyoungcy/triarb/internal/graph"
	"github.com/alanyoungcy/triarb/internal/notify"
	"github.com/alanyoungcy/triarb/internal/platform/binance"
	"github.com/alanyoungcy/triarb/internal/profit"
	"github.com/alanyoungcy/triarb/internal/rank"
	"github.com/alanyoungcy/triarb/internal/store/postgres"
)

// combinedStreamLimit is the maximum number of bookTicker streams one
// multiplexed connection subscribes to; above it the feed falls back to the
// all-market ticker stream.
const combinedStreamLimit = 512

// Dependencies bundles everything the application modes need to operate.
// Optional backends (Postgres, Redis, S3) are nil when disabled in config.
type Dependencies struct {
	Exchange *binance.Client
	Builder  *graph.Builder
	Prio     *rank.Prioritizer
	Calc     *profit.Calculator
	Pool     *feed.DepthPool
	Ledger   *executor.Ledger
	Exec     *executor.VirtualExecutor

	// NewFeed builds a quote feed subscribed to the given symbols, or the
	// all-market stream when the set exceeds the per-connection limit.
	NewFeed func(symbols []string) *feed.QuoteFeed

	LedgerStore  domain.LedgerStore
	SignalBus    domain.SignalBus
	SummaryCache *redis.SummaryCache
	Locks        *redis.LockManager
	Archiver     *s3blob.Archiver
	Notifier     *notify.Notifier
}

// Wire constructs all concrete dependencies from the configuration and
// returns them together with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Exchange: binance.NewClient(cfg.Exchange.RestHost, cfg.Exchange.RestRateLimit),
		Builder:  graph.NewBuilder(logger),
		Prio:     rank.NewPrioritizer(cfg.Graph.Anchors, cfg.Rank.Majors, cfg.Rank.SettlementSuffixes),
		Calc: profit.NewCalculator(profit.Params{
			FeeRate:         cfg.Engine.FeeRate,
			SafetyMarginPct: cfg.Engine.SafetyMarginPct,
			MinProfit:       cfg.Engine.MinProfit,
			BookMaxAge:      cfg.Engine.BookMaxAge.Duration,
		}),
	}

	// Ledger sinks, assembled before the ledger itself.
	var sinks []domain.LedgerSink

	if cfg.Engine.LedgerCSV != "" {
		csvSink, err := executor.NewCSVSink(cfg.Engine.LedgerCSV)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: csv sink: %w", err)
		}
		closers = append(closers, func() { _ = csvSink.Close() })
		sinks = append(sinks, csvSink)
	}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		store := postgres.NewLedgerStore(pgClient.Pool())
		deps.LedgerStore = store
		sinks = append(sinks, store)
	}

	deps.Ledger = executor.NewLedger(logger, sinks...)
	deps.Exec = executor.NewVirtualExecutor(deps.Ledger, cfg.Engine.Cooldown.Duration, logger)

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.SummaryCache = redis.NewSummaryCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Ledger,
			cfg.Engine.LoopFile,
			cfg.S3.ArchiveEvery.Duration,
			logger,
		)
	}

	dialer := binance.DepthDialer{
		WsHost:   cfg.Exchange.WsHost,
		Levels:   cfg.Depth.Levels,
		UpdateMs: cfg.Depth.UpdateMs,
	}
	deps.Pool = feed.NewDepthPool(
		feed.DepthDialFunc(func(symbol string) feed.DepthStream {
			return dialer.Dial(symbol)
		}),
		cfg.Depth.MaxSymbols,
		logger,
	)

	wsHost := cfg.Exchange.WsHost
	deps.NewFeed = func(symbols []string) *feed.QuoteFeed {
		if len(symbols) > combinedStreamLimit {
			symbols = nil
		}
		return feed.NewQuoteFeed(binance.NewTickerStream(wsHost, symbols), logger)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
