package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Handler processes one record. A non-nil error leaves the record
// unacknowledged so the group redelivers it.
type Handler func(ctx context.Context, record *kgo.Record) error

// ConsumerConfig holds group-consumer configuration.
type ConsumerConfig struct {
	Brokers []string
	Group   string
	Topic   string
	Logger  zerolog.Logger

	// FromLatest starts a fresh group at the end of the topic instead of the
	// beginning. Live-view consumers set this; durable consumers do not.
	FromLatest bool
}

// retryBaseDelay and retryMaxDelay pace in-place retries of a failing record.
const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// Consumer is a group consumer with manual acknowledgement: offsets are
// marked only after the handler returns nil, and records within a partition
// are handled in order. A failing record is retried in place, so the
// committed offset never moves past a record that has not been processed.
type Consumer struct {
	client *kgo.Client
	cfg    ConsumerConfig
	logger zerolog.Logger

	mark      func(...*kgo.Record)
	retryBase time.Duration
	retryMax  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer builds a Consumer. Consumption starts with Run.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	logger := cfg.Logger.With().Str("group", cfg.Group).Str("topic", cfg.Topic).Logger()

	resetOffset := kgo.NewOffset().AtStart()
	if cfg.FromLatest {
		resetOffset = kgo.NewOffset().AtEnd()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(resetOffset),
		kgo.AutoCommitMarks(),
		kgo.FetchMaxWait(500 * time.Millisecond),
		kgo.SessionTimeout(30 * time.Second),
		kgo.RebalanceTimeout(60 * time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			logger.Info().Interface("partitions", assigned).Msg("partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			logger.Info().Interface("partitions", revoked).Msg("partitions revoked")
		}),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{
		client:    client,
		cfg:       cfg,
		logger:    logger,
		mark:      client.MarkCommitRecords,
		retryBase: retryBaseDelay,
		retryMax:  retryMaxDelay,
	}, nil
}

// Run polls until ctx is cancelled, invoking handler per record. Within a
// partition records are handled strictly in order; a failing record is
// retried in place. Fetch errors are logged and polling retries.
func (c *Consumer) Run(ctx context.Context, handler Handler) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info().Msg("consumer started")
		for {
			select {
			case <-runCtx.Done():
				return
			default:
			}

			fetches := c.client.PollFetches(runCtx)
			if fetches.IsClientClosed() {
				return
			}
			for _, fetchErr := range fetches.Errors() {
				if runCtx.Err() != nil {
					return
				}
				c.logger.Error().
					Err(fetchErr.Err).
					Str("topic", fetchErr.Topic).
					Int32("partition", fetchErr.Partition).
					Msg("fetch error")
			}

			fetches.EachPartition(func(p kgo.FetchTopicPartition) {
				c.handlePartition(runCtx, handler, p)
			})
		}
	}()
}

// handlePartition processes one partition's records in order, marking each
// for commit as its handler succeeds. Returning early on a failure is not an
// option: the client's consumed position has already moved past this batch,
// so the next successful mark would commit over the failed offset. Instead
// the failing record is retried in place until it goes through.
func (c *Consumer) handlePartition(ctx context.Context, handler Handler, p kgo.FetchTopicPartition) {
	for _, record := range p.Records {
		if !c.handleRecord(ctx, handler, record) {
			return
		}
		c.mark(record)
	}
}

// handleRecord runs handler on record until it succeeds, backing off between
// attempts. False means ctx was cancelled before the record went through; the
// record stays unmarked and the group redelivers it from the committed offset.
func (c *Consumer) handleRecord(ctx context.Context, handler Handler, record *kgo.Record) bool {
	delay := c.retryBase
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		err := handler(ctx, record)
		if err == nil {
			return true
		}
		c.logger.Error().
			Err(err).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("record handling failed, retrying")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay *= 2; delay > c.retryMax {
			delay = c.retryMax
		}
	}
}

// Close stops the poll loop, commits marked offsets, and releases the client.
func (c *Consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.CommitMarkedOffsets(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("final offset commit failed")
	}
	c.client.Close()
	c.logger.Info().Msg("consumer stopped")
}
