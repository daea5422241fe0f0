// Package processing consumes raw metric records and drives the two
// downstream tracks: aggregation (cache + history) and alert evaluation.
// Acknowledgement is withheld until both tracks complete.
package processing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/aggregate"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/alert"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// Processor handles one raw metric record per call.
type Processor struct {
	aggregator *aggregate.Aggregator
	engine     *alert.Engine
	logger     zerolog.Logger
}

// New builds a Processor over the aggregation and alerting tracks.
func New(aggregator *aggregate.Aggregator, engine *alert.Engine, logger zerolog.Logger) *Processor {
	return &Processor{aggregator: aggregator, engine: engine, logger: logger}
}

// Handle decodes record and runs both tracks concurrently. Aggregation never
// fails; a decode or alerting failure is returned so the record stays
// unacknowledged and is redelivered.
func (p *Processor) Handle(ctx context.Context, record *kgo.Record) error {
	m, err := event.DecodeMetric(record.Value)
	if err != nil {
		metrics.RecordsProcessed.WithLabelValues(record.Topic, "decode_error").Inc()
		return fmt.Errorf("offset %d: %w", record.Offset, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res := p.aggregator.Record(gctx, m)
		p.logger.Debug().
			Str("service", m.ServiceName).
			Str("metric_type", string(m.MetricType)).
			Bool("cached", res.Cached).
			Bool("persisted", res.Persisted).
			Msg("metric aggregated")
		return nil
	})
	g.Go(func() error {
		return p.engine.ProcessMetric(gctx, m)
	})

	if err := g.Wait(); err != nil {
		metrics.RecordsProcessed.WithLabelValues(record.Topic, "error").Inc()
		return err
	}
	metrics.RecordsProcessed.WithLabelValues(record.Topic, "ok").Inc()
	return nil
}
