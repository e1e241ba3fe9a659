package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"homeledger/internal/notification/outbox"
	"homeledger/internal/platform/config"
	"homeledger/internal/platform/httpserver"
	"homeledger/internal/platform/logger"
	"homeledger/internal/platform/metrics"
	"homeledger/internal/platform/otel"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "homeledger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.JWTSigningKey == config.DevSigningKey {
		log.Warn("JWT_SIGNING_KEY not set; using the development key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "homeledger", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.Close()

	m := metrics.New()
	svc := buildServices(in.backend, cfg, log, m)
	srv := httpserver.New(cfg, newRouter(cfg, log, svc, in), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting homeledger", "addr", cfg.Addr, "postgres", cfg.UsesPostgres(), "relay", cfg.RelayEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if in.producer != nil {
		relay := outbox.NewRelay(in.outbox, in.producer,
			outbox.WithInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithLogger(log),
			outbox.WithMetrics(m),
		)
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("homeledger stopped", slog.Any("error", err))
	return err
}
