// Package kafka publishes notification events with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	notificationmodels "homeledger/internal/notification/models"
)

// Producer writes events to one topic, keyed by recipient so a recipient's
// notifications stay ordered within a partition.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to brokers. Produces wait for all in-sync replicas.
func NewProducer(brokers []string, topic string, opts ...kgo.Opt) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	resp, err := kadm.NewClient(p.client).CreateTopic(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

// Publish produces events synchronously and returns the first failure.
func (p *Producer) Publish(ctx context.Context, events []notificationmodels.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		record, err := toRecord(e)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce notifications: %w", err)
	}
	return nil
}

func toRecord(e notificationmodels.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return &kgo.Record{
		Key:   []byte(recipientKey(e)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(e.ID.String())},
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}, nil
}

func recipientKey(e notificationmodels.Event) string {
	if e.RecipientID != nil {
		return e.RecipientID.String()
	}
	return e.RecipientEmail
}

// Health pings the cluster.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}
