package main

import (
	"context"
	"fmt"
	"log/slog"

	"homeledger/internal/notification/outbox"
	"homeledger/internal/platform/config"
	"homeledger/internal/platform/kafka"
	platformpg "homeledger/internal/platform/postgres"
	platformredis "homeledger/internal/platform/redis"
	"homeledger/internal/storage"
	"homeledger/internal/storage/memory"
	pgstore "homeledger/internal/storage/postgres"
	"homeledger/pkg/platform/middleware/idempotency"
)

// infra holds the external resources the process owns.
type infra struct {
	backend     storage.Backend
	outbox      outbox.Source
	idempotency idempotency.Store
	producer    *kafka.Producer
	checks      map[string]func(context.Context) error
	closers     []func()
}

func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *infra, err error) {
	in := &infra{checks: map[string]func(context.Context) error{}}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	if cfg.UsesPostgres() {
		db, err := platformpg.OpenAndMigrate(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, func() { _ = db.Close() })
		in.backend = pgstore.New(db, pgstore.WithTxTimeout(cfg.TxTimeout))
		in.checks["postgres"] = db.PingContext

		pool, err := platformpg.OpenPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, pool.Close)
		in.outbox = outbox.NewPostgresSource(pool)
		log.Info("storage ready", "backend", "postgres")
	} else {
		mem := memory.New(memory.WithTxTimeout(cfg.TxTimeout))
		in.backend = mem
		in.outbox = mem
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	client, err := platformredis.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		in.closers = append(in.closers, func() { _ = client.Close() })
		in.idempotency = idempotency.NewRedisStore(client)
		in.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		in.idempotency = idempotency.NewMemoryStore()
	}

	if cfg.RelayEnabled() {
		producer, err := kafka.NewProducer(cfg.Outbox.KafkaBrokers, cfg.Outbox.Topic)
		if err != nil {
			return nil, fmt.Errorf("notification producer: %w", err)
		}
		in.closers = append(in.closers, producer.Close)
		if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure notification topic", "topic", cfg.Outbox.Topic, "error", err)
		}
		in.producer = producer
		in.checks["kafka"] = producer.Health
	}
	return in, nil
}
