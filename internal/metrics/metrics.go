// Package metrics defines the pipeline's Prometheus instrumentation and the
// HTTP listener that exposes it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// MetricsIngested counts accepted ingestion requests by metric type.
	MetricsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "metrics_ingested_total",
		Help:      "Metric samples accepted by the ingestion API.",
	}, []string{"metric_type"})

	// MetricsRejected counts ingestion requests failing validation.
	MetricsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "metrics_rejected_total",
		Help:      "Metric samples rejected by validation.",
	})

	// RecordsProcessed counts consumed records by topic and outcome.
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "records_processed_total",
		Help:      "Kafka records handled, by topic and outcome.",
	}, []string{"topic", "outcome"})

	// AlertsTriggered counts alert activations by severity.
	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "alerts_triggered_total",
		Help:      "Alerts transitioned to ACTIVE.",
	}, []string{"severity"})

	// AlertsActive tracks unresolved alerts in the store by severity.
	AlertsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "monitoring",
		Name:      "alerts_active",
		Help:      "Unresolved alerts currently recorded in the store.",
	}, []string{"severity"})

	// AlertsResolved counts alert resolutions.
	AlertsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "alerts_resolved_total",
		Help:      "Alerts transitioned to RESOLVED.",
	})

	// NotificationsSent counts deliveries by channel and outcome.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "notifications_sent_total",
		Help:      "Notification deliveries, by channel and outcome.",
	}, []string{"channel", "outcome"})

	// NotificationsSuppressed counts throttled notifications by reason.
	NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "notifications_suppressed_total",
		Help:      "Notifications suppressed by the throttler.",
	}, []string{"reason"})

	// StreamSubscribers tracks live SSE subscribers per stream.
	StreamSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "monitoring",
		Name:      "stream_subscribers",
		Help:      "Currently connected SSE subscribers.",
	}, []string{"stream"})

	// StreamDropped counts events dropped by subscriber backpressure.
	StreamDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "stream_events_dropped_total",
		Help:      "Events dropped because a subscriber buffer was full.",
	}, []string{"stream"})

	// CacheDegraded counts cache operations that fell back to a degraded
	// result.
	CacheDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "monitoring",
		Name:      "cache_degraded_total",
		Help:      "Cache operations that degraded due to Redis unavailability.",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics listener failed")
	}
}
