// Package aggregate fans one metric sample out to the latest-value cache and
// the relational history in parallel. Both sinks are best-effort: a degraded
// cache or database slows nothing down and never blocks alert evaluation.
package aggregate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/cache"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

// LatestCache stores the newest sample per (service, metric type).
type LatestCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
}

// History appends samples to the metric history table.
type History interface {
	InsertMetric(ctx context.Context, m *event.MetricEvent) error
}

// Result reports which sinks accepted the sample.
type Result struct {
	Cached    bool
	Persisted bool
}

// Aggregator writes each sample to both sinks.
type Aggregator struct {
	cache   LatestCache
	history History
	ttl     time.Duration
	logger  zerolog.Logger
}

// New builds an Aggregator. ttl bounds the lifetime of latest-value entries.
func New(latest LatestCache, history History, ttl time.Duration, logger zerolog.Logger) *Aggregator {
	return &Aggregator{cache: latest, history: history, ttl: ttl, logger: logger}
}

// Record writes m to the cache and the history concurrently and reports which
// sinks took it. Sink failures are logged, never returned: losing a history
// row or a cache entry is preferable to stalling the processing stream.
func (a *Aggregator) Record(ctx context.Context, m *event.MetricEvent) Result {
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Cached = a.cacheLatest(gctx, m)
		return nil
	})
	g.Go(func() error {
		res.Persisted = a.persist(gctx, m)
		return nil
	})
	_ = g.Wait()

	return res
}

func (a *Aggregator) cacheLatest(ctx context.Context, m *event.MetricEvent) bool {
	encoded, err := event.EncodeMetric(m)
	if err != nil {
		a.logger.Error().Err(err).
			Str("service", m.ServiceName).
			Str("metric_type", string(m.MetricType)).
			Msg("metric encode failed")
		return false
	}
	key := cache.MetricKey(m.ServiceName, string(m.MetricType))
	return a.cache.Set(ctx, key, string(encoded), a.ttl)
}

func (a *Aggregator) persist(ctx context.Context, m *event.MetricEvent) bool {
	if err := a.history.InsertMetric(ctx, m); err != nil {
		a.logger.Warn().Err(err).
			Str("service", m.ServiceName).
			Str("metric_type", string(m.MetricType)).
			Msg("metric history insert failed")
		return false
	}
	return true
}
