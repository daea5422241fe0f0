package processing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// SeverityCounter reports the number of unresolved alerts per severity.
type SeverityCounter interface {
	CountActiveBySeverity(ctx context.Context) (map[event.Severity]int64, error)
}

// WatchActiveAlerts refreshes the active-alert gauge from the store until ctx
// is cancelled.
func WatchActiveAlerts(ctx context.Context, counter SeverityCounter, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshActiveAlerts(ctx, counter, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshActiveAlerts(ctx, counter, logger)
		}
	}
}

// refreshActiveAlerts sets the gauge for every severity, zeroing the ones
// with no unresolved alerts.
func refreshActiveAlerts(ctx context.Context, counter SeverityCounter, logger zerolog.Logger) {
	counts, err := counter.CountActiveBySeverity(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("active-alert count failed")
		return
	}
	for _, sev := range []event.Severity{
		event.SeverityLow, event.SeverityMedium, event.SeverityHigh, event.SeverityCritical,
	} {
		metrics.AlertsActive.WithLabelValues(string(sev)).Set(float64(counts[sev]))
	}
}
