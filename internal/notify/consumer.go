package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/bus"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// AlertHandler returns a record handler feeding the notifier. Records are
// acknowledged unconditionally: a failed or throttled delivery must not hold
// the alerts topic hostage, and undecodable records are dropped with a log.
func AlertHandler(notifier *Notifier, logger zerolog.Logger) bus.Handler {
	return func(_ context.Context, record *kgo.Record) error {
		a, err := event.DecodeAlert(record.Value)
		if err != nil {
			metrics.RecordsProcessed.WithLabelValues(record.Topic, "decode_error").Inc()
			logger.Warn().Err(err).Int64("offset", record.Offset).Msg("undecodable alert record dropped")
			return nil
		}
		notifier.Dispatch(a)
		metrics.RecordsProcessed.WithLabelValues(record.Topic, "ok").Inc()
		return nil
	}
}
