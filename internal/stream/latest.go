package stream

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/cache"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

// LatestSource is the subset of cache reads the latest-metric scan needs.
type LatestSource interface {
	Scan(ctx context.Context, pattern string) []string
	Get(ctx context.Context, key string) (string, bool)
}

// LatestReader periodically materializes the newest cached sample per
// (service, metric type) for overview streams.
type LatestReader struct {
	source LatestSource
	logger zerolog.Logger
}

// NewLatestReader builds a reader over the latest-value keyspace.
func NewLatestReader(source LatestSource, logger zerolog.Logger) *LatestReader {
	return &LatestReader{source: source, logger: logger}
}

// Snapshot scans the latest-value keyspace, optionally restricted to one
// service, and decodes every entry. Keys that vanish mid-scan or fail to
// decode are skipped with a log. Results are ordered by key for stable
// emission.
func (r *LatestReader) Snapshot(ctx context.Context, service string) []*event.MetricEvent {
	keys := r.source.Scan(ctx, cache.MetricScanPattern(service))
	sort.Strings(keys)

	snapshot := make([]*event.MetricEvent, 0, len(keys))
	for _, key := range keys {
		raw, found := r.source.Get(ctx, key)
		if !found {
			continue
		}
		m, err := event.DecodeMetric([]byte(raw))
		if err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("undecodable latest-metric entry skipped")
			continue
		}
		snapshot = append(snapshot, m)
	}
	return snapshot
}
