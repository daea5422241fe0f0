package alert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/cache"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/store"
)

// activeStateTTL bounds how long an active-alert entry may outlive its last
// update. A crashed resolver therefore self-heals within a day.
const activeStateTTL = 24 * time.Hour

// RuleSource yields the rules applicable to one metric sample.
type RuleSource interface {
	FindApplicableRules(ctx context.Context, service string, metricType event.MetricType) ([]store.AlertRule, error)
}

// History persists alert lifecycle transitions.
type History interface {
	InsertAlert(ctx context.Context, a *event.AlertEvent) error
	ResolveAlert(ctx context.Context, a *event.AlertEvent) error
}

// Publisher emits alert events downstream.
type Publisher interface {
	PublishAlert(ctx context.Context, a *event.AlertEvent) error
}

// StateCache is the subset of cache operations the engine needs. All methods
// degrade rather than fail; the bool reports whether the operation took
// effect.
type StateCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
}

// Engine evaluates metric samples against the rule table and drives the alert
// state machine. The cached state entry is the single source of truth for
// whether an alert is active: triggering is guarded on its absence and
// resolution on its presence.
type Engine struct {
	rules     RuleSource
	history   History
	cache     StateCache
	publisher Publisher
	logger    zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewEngine builds an Engine over the given collaborators.
func NewEngine(rules RuleSource, history History, stateCache StateCache, publisher Publisher, logger zerolog.Logger) *Engine {
	return &Engine{
		rules:     rules,
		history:   history,
		cache:     stateCache,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// ProcessMetric evaluates one sample against every applicable rule in order.
// A returned error means a lifecycle transition could not be completed and
// the sample must be redelivered.
func (e *Engine) ProcessMetric(ctx context.Context, m *event.MetricEvent) error {
	rules, err := e.rules.FindApplicableRules(ctx, m.ServiceName, m.MetricType)
	if err != nil {
		return fmt.Errorf("load rules for %s/%s: %w", m.ServiceName, m.MetricType, err)
	}

	for i := range rules {
		if err := e.applyRule(ctx, &rules[i], m); err != nil {
			return err
		}
	}
	return nil
}

// applyRule runs the state machine for a single (rule, sample) pair.
func (e *Engine) applyRule(ctx context.Context, rule *store.AlertRule, m *event.MetricEvent) error {
	alertType := event.AlertTypeFor(rule.MetricType, rule.Severity)
	stateKey := cache.AlertStateKey(m.ServiceName, alertType)
	violating := Evaluate(m.MetricValue, rule.ThresholdValue, rule.Operator)

	prior, active := e.activeAlert(ctx, stateKey)

	if !violating {
		e.clearPending(ctx, m.ServiceName, alertType)
		if !active {
			return nil
		}
		return e.resolve(ctx, stateKey, prior, m)
	}

	if active {
		// Already alerted; re-triggering would duplicate notifications.
		return nil
	}
	if !e.durationSatisfied(ctx, rule, m.ServiceName, alertType) {
		return nil
	}
	return e.trigger(ctx, stateKey, rule, alertType, m)
}

// activeAlert loads and decodes the cached alert for stateKey. Undecodable
// entries are treated as absent after logging; the stale key is removed so the
// state machine can make progress.
func (e *Engine) activeAlert(ctx context.Context, stateKey string) (*event.AlertEvent, bool) {
	raw, found := e.cache.Get(ctx, stateKey)
	if !found {
		return nil, false
	}
	prior, err := event.DecodeAlert([]byte(raw))
	if err != nil {
		e.logger.Error().Err(err).Str("key", stateKey).Msg("corrupt alert state entry, dropping")
		e.cache.Delete(ctx, stateKey)
		return nil, false
	}
	return prior, true
}

// durationSatisfied reports whether the rule's minimum violation duration has
// elapsed. Rules without a duration trigger immediately. The first violation
// stamps a pending entry; the trigger fires only once a later sample arrives
// past the window.
func (e *Engine) durationSatisfied(ctx context.Context, rule *store.AlertRule, service, alertType string) bool {
	if rule.DurationMinutes <= 0 {
		return true
	}

	window := time.Duration(rule.DurationMinutes) * time.Minute
	pendingKey := cache.PendingKey(service, alertType)
	now := e.now()

	raw, found := e.cache.Get(ctx, pendingKey)
	if !found {
		// TTL of twice the window lets a stale entry expire on its own if the
		// violation stream stops without a clean sample.
		e.cache.Set(ctx, pendingKey, strconv.FormatInt(now.Unix(), 10), 2*window)
		return false
	}

	first, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		e.logger.Warn().Str("key", pendingKey).Str("value", raw).Msg("corrupt pending entry, restarting window")
		e.cache.Set(ctx, pendingKey, strconv.FormatInt(now.Unix(), 10), 2*window)
		return false
	}
	if now.Sub(time.Unix(first, 0)) < window {
		return false
	}
	e.cache.Delete(ctx, pendingKey)
	return true
}

func (e *Engine) clearPending(ctx context.Context, service, alertType string) {
	e.cache.Delete(ctx, cache.PendingKey(service, alertType))
}

// trigger creates a new ACTIVE alert, caches it, records history, and
// publishes it. A failed cache write aborts the trigger: without the guard
// entry every subsequent sample would re-trigger. A failed history insert is
// logged and tolerated; a failed publish propagates so the sample is
// redelivered.
func (e *Engine) trigger(ctx context.Context, stateKey string, rule *store.AlertRule, alertType string, m *event.MetricEvent) error {
	now := event.At(e.now())
	a := &event.AlertEvent{
		AlertID:        e.newID(),
		ServiceName:    m.ServiceName,
		AlertType:      alertType,
		Severity:       rule.Severity,
		Status:         event.StatusActive,
		Message:        triggerMessage(rule, m.MetricValue),
		Description:    rule.Description,
		ThresholdValue: rule.ThresholdValue,
		CurrentValue:   m.MetricValue,
		TriggeredAt:    now,
		Hostname:       m.Hostname,
		Environment:    m.Environment,
		CreatedAt:      &now,
		Metadata: map[string]string{
			"ruleName": rule.RuleName,
		},
	}

	encoded, err := event.EncodeAlert(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.AlertID, err)
	}
	if !e.cache.Set(ctx, stateKey, string(encoded), activeStateTTL) {
		return fmt.Errorf("cache alert state %s: cache unavailable", stateKey)
	}

	if err := e.history.InsertAlert(ctx, a); err != nil {
		e.logger.Error().Err(err).Str("alert_id", a.AlertID).Msg("alert history insert failed")
	}

	if err := e.publisher.PublishAlert(ctx, a); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.AlertID, err)
	}

	metrics.AlertsTriggered.WithLabelValues(string(a.Severity)).Inc()
	e.logger.Info().
		Str("alert_id", a.AlertID).
		Str("service", a.ServiceName).
		Str("alert_type", a.AlertType).
		Str("severity", string(a.Severity)).
		Float64("value", m.MetricValue).
		Float64("threshold", rule.ThresholdValue).
		Msg("alert triggered")
	return nil
}

// resolve transitions the cached alert to RESOLVED. The guard entry is
// removed last: as long as it exists a redelivered sample re-enters this path,
// so a failed publish or deletion is retried rather than lost. The history
// update is conditioned on the row being unresolved, and a duplicate RESOLVED
// publish is harmless, so the whole path is idempotent under redelivery. A
// history failure alone is logged and tolerated: the publish must still go
// out, and the row stays eligible for the update on a later pass.
func (e *Engine) resolve(ctx context.Context, stateKey string, prior *event.AlertEvent, m *event.MetricEvent) error {
	prior.Resolve(e.now(), m.MetricValue)

	if err := e.history.ResolveAlert(ctx, prior); err != nil {
		e.logger.Error().Err(err).Str("alert_id", prior.AlertID).Msg("alert resolution update failed")
	}
	if err := e.publisher.PublishAlert(ctx, prior); err != nil {
		return fmt.Errorf("publish resolution %s: %w", prior.AlertID, err)
	}
	if !e.cache.Delete(ctx, stateKey) {
		return fmt.Errorf("clear alert state %s: cache unavailable", stateKey)
	}

	metrics.AlertsResolved.Inc()
	e.logger.Info().
		Str("alert_id", prior.AlertID).
		Str("service", prior.ServiceName).
		Str("alert_type", prior.AlertType).
		Int64("duration_seconds", prior.DurationSeconds).
		Msg("alert resolved")
	return nil
}

// triggerMessage renders the human-readable alert message.
func triggerMessage(rule *store.AlertRule, value float64) string {
	return fmt.Sprintf("%s %s threshold exceeded: current=%.2f, threshold=%.2f",
		rule.MetricType.DisplayName(), rule.Operator, value, rule.ThresholdValue)
}
