// Package bus carries events between the pipeline's services over Kafka.
// Producers publish synchronously; consumers are group-based with at-least-
// once delivery, committing offsets only after the handler succeeds.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes records to a single topic and waits for broker
// acknowledgement before reporting success.
type Producer struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger
}

// NewProducer builds a synchronous producer for topic.
func NewProducer(brokers []string, topic string, logger zerolog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client, topic: topic, logger: logger}, nil
}

// Publish sends one keyed record and blocks until the broker acknowledges it.
// The error is non-nil only for broker-side failures or timeouts.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	record := &kgo.Record{Topic: p.topic, Key: []byte(key), Value: value}

	results := p.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("key", key).
		Int32("partition", record.Partition).
		Int64("offset", record.Offset).
		Msg("record published")
	return nil
}

// Close flushes outstanding records and releases the client.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn().Err(err).Str("topic", p.topic).Msg("producer flush incomplete")
	}
	p.client.Close()
}
