package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/farsight-markets/farsight/internal/auth"
	s3blob "github.com/farsight-markets/farsight/internal/blob/s3"
	"github.com/farsight-markets/farsight/internal/cache/redis"
	"github.com/farsight-markets/farsight/internal/clockwork"
	"github.com/farsight-markets/farsight/internal/config"
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/ledger"
	"github.com/farsight-markets/farsight/internal/notify"
	"github.com/farsight-markets/farsight/internal/pipeline"
	"github.com/farsight-markets/farsight/internal/service"
	"github.com/farsight-markets/farsight/internal/store/memory"
	"github.com/farsight-markets/farsight/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Markets        domain.MarketStore
	MultiMarkets   domain.MultiMarketStore
	Answers        domain.AnswerStore
	Positions      domain.PositionStore
	MultiPositions domain.MultiPositionStore
	Orders         domain.OrderStore
	Orderbooks     domain.OrderbookStore
	Audit          domain.AuditStore
	Ledger         domain.CollateralLedger
	Tx             domain.TxRunner

	// Collaborators
	Locks  domain.LockManager
	Quotes domain.QuoteCache
	Bus    domain.SignalBus
	Blobs  domain.BlobWriter
	Clock  domain.Clock
	Auth   domain.Authorizer

	// Services
	MarketService   *service.MarketService
	MultiService    *service.MultiService
	TradeService    *service.TradeService
	OrderService    *service.OrderService
	PositionService *service.PositionService

	// Background loops
	Sweeper      *pipeline.OrderSweeper
	Orchestrator *pipeline.Orchestrator

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Clock: clockwork.NewSystem(),
		Auth:  selectAuthorizer(cfg),
	}

	storage := strings.ToLower(cfg.Storage)

	switch storage {
	case "postgres":
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

		if cfg.Postgres.RunMigrations || strings.ToLower(cfg.Mode) == "migrate" {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Markets = postgres.NewMarketStore(pool)
		deps.MultiMarkets = postgres.NewMultiMarketStore(pool)
		deps.Answers = postgres.NewAnswerStore(pool)
		deps.Positions = postgres.NewPositionStore(pool)
		deps.MultiPositions = postgres.NewMultiPositionStore(pool)
		deps.Orders = postgres.NewOrderStore(pool)
		deps.Orderbooks = postgres.NewOrderbookStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Ledger = postgres.NewLedger(pool)
		deps.Tx = postgres.NewTxRunner(pool)

		// Redis backs the cross-process collaborators in the postgres pair.
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

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Quotes = redis.NewQuoteCache(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)

	case "memory":
		store := memory.NewStore()
		deps.Markets = store.Markets()
		deps.MultiMarkets = store.MultiMarkets()
		deps.Answers = store.Answers()
		deps.Positions = store.Positions()
		deps.MultiPositions = store.MultiPositions()
		deps.Orders = store.Orders()
		deps.Orderbooks = store.Orderbooks()
		deps.Audit = store.Audit()
		deps.Ledger = ledger.NewMemory()
		deps.Tx = memory.NewTxRunner(store)
		deps.Locks = memory.NewLockManager()
		deps.Quotes = memory.NewQuoteCache()
		deps.Bus = memory.NewSignalBus()

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage %q", cfg.Storage)
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
		deps.Blobs = s3blob.NewWriter(s3Client)
	}

	deps.MarketService = service.NewMarketService(
		deps.Markets, deps.Positions, deps.Ledger, deps.Auth, deps.Clock,
		deps.Locks, deps.Tx, deps.Quotes, deps.Bus, deps.Audit, deps.Blobs,
		logger,
	)
	deps.MultiService = service.NewMultiService(
		deps.MultiMarkets, deps.Answers, deps.MultiPositions, deps.Orders,
		deps.Orderbooks, deps.Ledger, deps.Auth, deps.Clock, deps.Locks,
		deps.Tx, deps.Quotes, deps.Bus, deps.Audit, deps.Blobs, logger,
	)
	deps.TradeService = service.NewTradeService(
		deps.Markets, deps.Positions, deps.Orders, deps.Orderbooks,
		deps.Ledger, deps.Locks, deps.Tx, deps.Quotes, deps.Bus, deps.Audit,
		logger,
	)
	deps.OrderService = service.NewOrderService(
		deps.Markets, deps.MultiMarkets, deps.Orders, deps.Orderbooks,
		deps.Auth, deps.Clock, deps.Locks, deps.Tx, deps.Bus, deps.Audit,
		logger,
	)
	deps.PositionService = service.NewPositionService(
		deps.MultiMarkets, deps.Answers, deps.MultiPositions, deps.Ledger,
		deps.Locks, deps.Tx, deps.Audit, logger,
	)

	deps.Sweeper = pipeline.NewOrderSweeper(
		deps.Orders, deps.Orderbooks, deps.Clock, deps.Locks, deps.Tx, logger,
	)

	deps.Notifier = buildNotifier(cfg, logger)
	var eventNotifier *pipeline.EventNotifier
	if deps.Notifier != nil {
		eventNotifier = pipeline.NewEventNotifier(deps.Bus, deps.Notifier, cfg.Notify.Channels, logger)
	}

	deps.Orchestrator = pipeline.NewOrchestrator(
		deps.Sweeper, eventNotifier, cfg.Engine.SweepInterval.Duration, logger,
	)

	return deps, cleanup, nil
}

// selectAuthorizer picks the caller authorizer. The static authorizer backs
// memory storage; signature recovery is the default everywhere else.
func selectAuthorizer(cfg *config.Config) domain.Authorizer {
	if strings.ToLower(cfg.Storage) == "memory" {
		return auth.NewStatic()
	}
	return auth.NewEthAuthorizer()
}

// buildNotifier assembles the operator notifier from configured credentials.
// It returns nil when no channel is configured.
func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Notify.Channels, logger)
}
