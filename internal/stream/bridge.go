package stream

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/bus"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// MetricBridge returns a record handler feeding the metric hub. Undecodable
// records are dropped with a log and the offset advances: a live view must
// never wedge on a poison record.
func MetricBridge(hub *Hub[*event.MetricEvent], logger zerolog.Logger) bus.Handler {
	return func(_ context.Context, record *kgo.Record) error {
		m, err := event.DecodeMetric(record.Value)
		if err != nil {
			metrics.RecordsProcessed.WithLabelValues(record.Topic, "decode_error").Inc()
			logger.Warn().Err(err).Int64("offset", record.Offset).Msg("undecodable metric record dropped")
			return nil
		}
		hub.Publish(m)
		metrics.RecordsProcessed.WithLabelValues(record.Topic, "ok").Inc()
		return nil
	}
}

// AlertBridge returns a record handler feeding the alert hub, with the same
// drop-and-advance behavior as MetricBridge.
func AlertBridge(hub *Hub[*event.AlertEvent], logger zerolog.Logger) bus.Handler {
	return func(_ context.Context, record *kgo.Record) error {
		a, err := event.DecodeAlert(record.Value)
		if err != nil {
			metrics.RecordsProcessed.WithLabelValues(record.Topic, "decode_error").Inc()
			logger.Warn().Err(err).Int64("offset", record.Offset).Msg("undecodable alert record dropped")
			return nil
		}
		hub.Publish(a)
		metrics.RecordsProcessed.WithLabelValues(record.Topic, "ok").Inc()
		return nil
	}
}
