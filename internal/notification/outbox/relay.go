// Package outbox ships notification events written by the services to the
// message broker. Delivery is at least once; consumers dedupe by event id.
package outbox

//go:generate mockgen -source=relay.go -destination=mocks/mocks.go -package=mocks Publisher

import (
	"context"
	"log/slog"
	"time"

	notificationmodels "homeledger/internal/notification/models"
	"homeledger/internal/platform/metrics"
)

// Publisher delivers a batch of events. A nil error means every event in the
// batch was accepted by the broker.
type Publisher interface {
	Publish(ctx context.Context, events []notificationmodels.Event) error
}

// Source hands out unpublished events and marks them published once the
// publish callback succeeds.
type Source interface {
	Process(ctx context.Context, limit int, publish func(ctx context.Context, events []notificationmodels.Event) error) (int, error)
}

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Relay polls a Source and forwards batches to a Publisher.
type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(source Source, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the source every interval until ctx is done. Publish failures
// are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes batches until the source runs dry or a batch fails.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.source.Process(ctx, r.batchSize, r.publish)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, events []notificationmodels.Event) error {
	if err := r.publisher.Publish(ctx, events); err != nil {
		r.metrics.ObserveOutboxPublished(metrics.OutcomeError, len(events))
		return err
	}
	r.metrics.ObserveOutboxPublished(metrics.OutcomeOK, len(events))
	r.logger.DebugContext(ctx, "outbox batch published", "count", len(events))
	return nil
}
