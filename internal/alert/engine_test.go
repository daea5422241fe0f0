package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/cache"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/store"
)

type fakeRules struct {
	rules []store.AlertRule
	err   error
}

func (f *fakeRules) FindApplicableRules(context.Context, string, event.MetricType) ([]store.AlertRule, error) {
	return f.rules, f.err
}

type fakeHistory struct {
	inserted   []*event.AlertEvent
	resolved   []*event.AlertEvent
	insertErr  error
	resolveErr error
}

func (f *fakeHistory) InsertAlert(_ context.Context, a *event.AlertEvent) error {
	f.inserted = append(f.inserted, a)
	return f.insertErr
}

func (f *fakeHistory) ResolveAlert(_ context.Context, a *event.AlertEvent) error {
	f.resolved = append(f.resolved, a)
	return f.resolveErr
}

type fakePublisher struct {
	published []*event.AlertEvent
	err       error
}

func (f *fakePublisher) PublishAlert(_ context.Context, a *event.AlertEvent) error {
	f.published = append(f.published, a)
	return f.err
}

// fakeCache is an in-memory StateCache. Failure flags simulate an open
// circuit breaker.
type fakeCache struct {
	data       map[string]string
	setFails   bool
	delFails   bool
	getMissing bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, bool) {
	if f.getMissing {
		return "", false
	}
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) bool {
	if f.setFails {
		return false
	}
	f.data[key] = value
	return true
}

func (f *fakeCache) Delete(_ context.Context, key string) bool {
	if f.delFails {
		return false
	}
	delete(f.data, key)
	return true
}

func cpuRule(threshold float64, durationMinutes int) store.AlertRule {
	return store.AlertRule{
		ID:              1,
		RuleName:        "high-cpu-usage",
		ServiceName:     "*",
		MetricType:      event.MetricCPU,
		ThresholdValue:  threshold,
		Operator:        "GT",
		DurationMinutes: durationMinutes,
		Severity:        event.SeverityHigh,
		Enabled:         true,
	}
}

func cpuSample(value float64) *event.MetricEvent {
	return &event.MetricEvent{
		ServiceName: "payments",
		MetricType:  event.MetricCPU,
		MetricValue: value,
		Timestamp:   event.Now(),
		Hostname:    "node-1",
		Environment: "production",
	}
}

func newTestEngine(rules *fakeRules, history *fakeHistory, c *fakeCache, pub *fakePublisher) *Engine {
	e := NewEngine(rules, history, c, pub, zerolog.Nop())
	e.newID = func() string { return "test-alert-id" }
	return e
}

func TestEngineTriggersOnFirstViolation(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, c, pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92.5)))

	require.Len(t, pub.published, 1)
	a := pub.published[0]
	assert.Equal(t, "test-alert-id", a.AlertID)
	assert.Equal(t, "CPU_HIGH", a.AlertType)
	assert.Equal(t, event.StatusActive, a.Status)
	assert.Equal(t, "CPU Utilization GT threshold exceeded: current=92.50, threshold=80.00", a.Message)
	assert.Equal(t, 92.5, a.CurrentValue)

	require.Len(t, history.inserted, 1)
	_, cached := c.Get(context.Background(), cache.AlertStateKey("payments", "CPU_HIGH"))
	assert.True(t, cached)
}

func TestEngineSkipsWhileAlreadyActive(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, c, pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(95)))

	assert.Len(t, pub.published, 1, "a still-violating sample must not re-trigger")
	assert.Len(t, history.inserted, 1)
}

func TestEngineResolvesWhenValueRecovers(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, c, pub)

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local)
	e.now = func() time.Time { return base }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))

	e.now = func() time.Time { return base.Add(90 * time.Second) }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(55)))

	require.Len(t, pub.published, 2)
	resolved := pub.published[1]
	assert.Equal(t, "test-alert-id", resolved.AlertID, "resolution reuses the trigger's alert ID")
	assert.Equal(t, event.StatusResolved, resolved.Status)
	assert.Equal(t, 55.0, resolved.CurrentValue)
	assert.Equal(t, int64(90), resolved.DurationSeconds)
	require.NotNil(t, resolved.ResolvedAt)

	require.Len(t, history.resolved, 1)
	_, cached := c.Get(context.Background(), cache.AlertStateKey("payments", "CPU_HIGH"))
	assert.False(t, cached, "resolution clears the state entry")
}

func TestEngineNoopWhenHealthyAndInactive(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, newFakeCache(), pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(40)))

	assert.Empty(t, pub.published)
	assert.Empty(t, history.inserted)
	assert.Empty(t, history.resolved)
}

func TestEngineDurationGate(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 5)}}, history, c, pub)

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local)

	e.now = func() time.Time { return base }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))
	assert.Empty(t, pub.published, "first violation only opens the window")

	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(93)))
	assert.Empty(t, pub.published, "violation inside the window must not trigger")

	e.now = func() time.Time { return base.Add(6 * time.Minute) }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(94)))
	require.Len(t, pub.published, 1, "violation past the window triggers")

	_, pending := c.Get(context.Background(), cache.PendingKey("payments", "CPU_HIGH"))
	assert.False(t, pending, "trigger consumes the pending entry")
}

func TestEngineHealthySampleResetsDurationWindow(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 5)}}, &fakeHistory{}, c, pub)

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local)

	e.now = func() time.Time { return base }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))

	e.now = func() time.Time { return base.Add(3 * time.Minute) }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(40)))

	e.now = func() time.Time { return base.Add(6 * time.Minute) }
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))

	assert.Empty(t, pub.published, "recovery mid-window restarts the duration gate")
}

func TestEngineTriggerFailsWhenStateCannotBeCached(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	c := newFakeCache()
	c.setFails = true
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, c, pub)

	err := e.ProcessMetric(context.Background(), cpuSample(92))
	require.Error(t, err)
	assert.Empty(t, pub.published, "an unguarded trigger must not be published")
}

func TestEngineTriggerSurvivesHistoryFailure(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{insertErr: errors.New("pg down")}
	pub := &fakePublisher{}
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, newFakeCache(), pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))
	assert.Len(t, pub.published, 1, "history failure must not block the alert")
}

func TestEngineResolveFailsWhenStateCannotBeCleared(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, c, pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))

	c.delFails = true
	err := e.ProcessMetric(context.Background(), cpuSample(40))
	require.Error(t, err)

	c.delFails = false
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(40)))

	_, cached := c.Get(context.Background(), cache.AlertStateKey("payments", "CPU_HIGH"))
	assert.False(t, cached, "redelivery clears the guard once the cache recovers")
	assert.GreaterOrEqual(t, len(pub.published), 2, "the resolution reaches the topic")
	assert.Equal(t, event.StatusResolved, pub.published[len(pub.published)-1].Status)
}

func TestEngineResolveSurvivesHistoryFailure(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{resolveErr: errors.New("pg down")}
	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, c, pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(40)))

	require.Len(t, pub.published, 2, "a failed history update must not swallow the resolution")
	assert.Equal(t, event.StatusResolved, pub.published[1].Status)
	_, cached := c.Get(context.Background(), cache.AlertStateKey("payments", "CPU_HIGH"))
	assert.False(t, cached, "the guard clears even when the history row stays stale")
}

func TestEngineResolveRetriesAfterPublishFailure(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{}
	pub := &fakePublisher{}
	c := newFakeCache()
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, history, c, pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(92)))

	pub.err = errors.New("broker unreachable")
	require.Error(t, e.ProcessMetric(context.Background(), cpuSample(40)))

	_, cached := c.Get(context.Background(), cache.AlertStateKey("payments", "CPU_HIGH"))
	require.True(t, cached, "a failed publish must keep the guard so redelivery retries")

	pub.err = nil
	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(40)))

	resolved := pub.published[len(pub.published)-1]
	assert.Equal(t, event.StatusResolved, resolved.Status)
	assert.Equal(t, "test-alert-id", resolved.AlertID)
	_, cached = c.Get(context.Background(), cache.AlertStateKey("payments", "CPU_HIGH"))
	assert.False(t, cached)
}

func TestEnginePublishFailurePropagates(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("broker unreachable")}
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{cpuRule(80, 0)}}, &fakeHistory{}, newFakeCache(), pub)

	require.Error(t, e.ProcessMetric(context.Background(), cpuSample(92)))
}

func TestEngineSpecificRuleOrderedBeforeWildcard(t *testing.T) {
	t.Parallel()

	specific := cpuRule(70, 0)
	specific.ID = 2
	specific.RuleName = "payments-cpu"
	specific.ServiceName = "payments"
	specific.Severity = event.SeverityCritical

	history := &fakeHistory{}
	pub := &fakePublisher{}
	e := newTestEngine(&fakeRules{rules: []store.AlertRule{specific, cpuRule(80, 0)}}, history, newFakeCache(), pub)

	require.NoError(t, e.ProcessMetric(context.Background(), cpuSample(75)))

	require.Len(t, pub.published, 1, "only the specific rule's threshold is crossed")
	assert.Equal(t, "CPU_CRITICAL", pub.published[0].AlertType)
}
