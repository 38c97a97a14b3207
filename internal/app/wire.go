package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/quantfold/mmsim/internal/blob/s3"
	"github.com/quantfold/mmsim/internal/cache/redis"
	"github.com/quantfold/mmsim/internal/config"
	"github.com/quantfold/mmsim/internal/diagnostics"
	"github.com/quantfold/mmsim/internal/domain"
	"github.com/quantfold/mmsim/internal/notify"
	"github.com/quantfold/mmsim/internal/source/live"
	"github.com/quantfold/mmsim/internal/source/replay"
	"github.com/quantfold/mmsim/internal/store/memory"
	"github.com/quantfold/mmsim/internal/store/postgres"
)

// Dependencies bundles every concrete dependency a run needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Source domain.MarketDataSource

	// Ledger stores. Postgres-backed when the durable ledger is enabled,
	// in-memory otherwise.
	Positions  domain.PositionStore
	Executions domain.ExecutionStore
	Runs       domain.RunStore

	Recorder *diagnostics.Recorder

	// Status is nil when Redis is disabled; the engine treats a missing
	// publisher as a no-op.
	Status *redis.StatusPublisher

	// Archiver is nil when S3 is disabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger stores ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, cfg.PostgresClientConfig())
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

		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Executions = postgres.NewExecutionStore(pool)
		deps.Runs = postgres.NewRunStore(pool)
	} else {
		ledger := memory.NewLedger()
		deps.Positions = ledger.Positions()
		deps.Executions = ledger.Executions()
		deps.Runs = ledger.Runs()
	}

	deps.Recorder = diagnostics.NewRecorder(deps.Executions, logger)

	// --- Redis status publishing ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, cfg.RedisClientConfig())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Status = redis.NewStatusPublisher(redisClient)
	}

	// --- S3 report archival ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, cfg.S3ClientConfig())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	// --- Market data source ---
	switch strings.ToLower(cfg.Source.Mode) {
	case "replay":
		src, err := replay.Open(cfg.Source.FixtureDir)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: replay source: %w", err)
		}
		deps.Source = src
	case "live":
		src, err := live.Dial(ctx, cfg.Source.WsURL, cfg.Source.Markets, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: live source: %w", err)
		}
		deps.Source = src
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown source mode %q", cfg.Source.Mode)
	}
	closers = append(closers, func() { _ = deps.Source.Close() })

	// --- Notifications ---
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
