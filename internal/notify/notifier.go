package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// Notifier fans an accepted alert out to every configured sink on the worker
// pool. Each sink sits behind its own circuit breaker: a dead channel is
// skipped instead of burning a worker on every alert.
type Notifier struct {
	sinks     []*guardedSink
	throttler *Throttler
	pool      *Pool
	timeout   time.Duration
	logger    zerolog.Logger
}

type guardedSink struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker
}

// NewNotifier builds a Notifier over sinks. timeout bounds each outbound
// send. A nil throttler disables throttling.
func NewNotifier(sinks []Sink, throttler *Throttler, pool *Pool, timeout time.Duration, logger zerolog.Logger) *Notifier {
	guarded := make([]*guardedSink, 0, len(sinks))
	for _, s := range sinks {
		s := s
		guarded = append(guarded, &guardedSink{
			sink: s,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name: s.Name(),
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
				Timeout: time.Minute,
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Warn().
						Str("sink", name).
						Str("from", from.String()).
						Str("to", to.String()).
						Msg("notification sink circuit breaker state change")
				},
			}),
		})
	}
	return &Notifier{
		sinks:     guarded,
		throttler: throttler,
		pool:      pool,
		timeout:   timeout,
		logger:    logger,
	}
}

// notifiable reports whether a status warrants operator notification.
func notifiable(status event.AlertStatus) bool {
	return status == event.StatusActive || status.Resolved()
}

// Dispatch throttles a and, when accepted, queues one send per sink. It
// returns immediately; delivery happens on the pool.
func (n *Notifier) Dispatch(a *event.AlertEvent) {
	if !notifiable(a.Status) {
		return
	}
	if n.throttler != nil && n.throttler.Suppress(a) {
		n.logger.Debug().
			Str("alert_id", a.AlertID).
			Str("service", a.ServiceName).
			Str("alert_type", a.AlertType).
			Msg("notification suppressed")
		return
	}

	for _, gs := range n.sinks {
		gs := gs
		if !n.pool.Submit(func() { n.send(gs, a) }) {
			metrics.NotificationsSent.WithLabelValues(gs.sink.Name(), "dropped").Inc()
			n.logger.Warn().
				Str("sink", gs.sink.Name()).
				Str("alert_id", a.AlertID).
				Msg("notification dropped, dispatch queue full")
		}
	}
}

func (n *Notifier) send(gs *guardedSink, a *event.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	_, err := gs.breaker.Execute(func() (any, error) {
		return nil, gs.sink.Send(ctx, a)
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(gs.sink.Name(), "error").Inc()
		n.logger.Error().Err(err).
			Str("sink", gs.sink.Name()).
			Str("alert_id", a.AlertID).
			Msg("notification delivery failed")
		return
	}
	metrics.NotificationsSent.WithLabelValues(gs.sink.Name(), "ok").Inc()
	n.logger.Info().
		Str("sink", gs.sink.Name()).
		Str("alert_id", a.AlertID).
		Str("status", string(a.Status)).
		Msg("notification delivered")
}
