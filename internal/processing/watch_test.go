package processing

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

type fakeCounter struct {
	counts map[event.Severity]int64
	err    error
}

func (f *fakeCounter) CountActiveBySeverity(context.Context) (map[event.Severity]int64, error) {
	return f.counts, f.err
}

func TestRefreshActiveAlertsSetsEverySeverity(t *testing.T) {
	counter := &fakeCounter{counts: map[event.Severity]int64{
		event.SeverityHigh:     2,
		event.SeverityCritical: 1,
	}}
	refreshActiveAlerts(context.Background(), counter, zerolog.Nop())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AlertsActive.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlertsActive.WithLabelValues("CRITICAL")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.AlertsActive.WithLabelValues("LOW")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.AlertsActive.WithLabelValues("MEDIUM")))

	counter.counts = map[event.Severity]int64{}
	refreshActiveAlerts(context.Background(), counter, zerolog.Nop())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.AlertsActive.WithLabelValues("HIGH")),
		"a severity with no unresolved alerts resets to zero")
}

func TestRefreshActiveAlertsKeepsGaugeOnError(t *testing.T) {
	counter := &fakeCounter{counts: map[event.Severity]int64{event.SeverityHigh: 3}}
	refreshActiveAlerts(context.Background(), counter, zerolog.Nop())

	counter.err = errors.New("pg down")
	refreshActiveAlerts(context.Background(), counter, zerolog.Nop())

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AlertsActive.WithLabelValues("HIGH")),
		"a failed count leaves the last known values in place")
}
