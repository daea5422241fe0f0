package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

func throttledAlert(service, alertType string) *event.AlertEvent {
	return &event.AlertEvent{
		AlertID:     "id-" + service + "-" + alertType,
		ServiceName: service,
		AlertType:   alertType,
		Severity:    event.SeverityHigh,
		Status:      event.StatusActive,
		TriggeredAt: event.Now(),
	}
}

func fixedClock(t *Throttler, at time.Time) func(time.Time) {
	current := at
	t.now = func() time.Time { return current }
	return func(next time.Time) { current = next }
}

func TestThrottlerHourlyBudget(t *testing.T) {
	t.Parallel()

	th := NewThrottler(15*time.Minute, 3)
	fixedClock(th, time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC))

	assert.False(t, th.Suppress(throttledAlert("web", "CPU_HIGH")))
	assert.False(t, th.Suppress(throttledAlert("web", "MEMORY_HIGH")))
	assert.False(t, th.Suppress(throttledAlert("web", "LATENCY_MEDIUM")))
	assert.True(t, th.Suppress(throttledAlert("web", "ERROR_RATE_CRITICAL")),
		"fourth distinct alert in the hour exceeds the budget")
}

func TestThrottlerBudgetIsPerService(t *testing.T) {
	t.Parallel()

	th := NewThrottler(15*time.Minute, 1)
	fixedClock(th, time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC))

	assert.False(t, th.Suppress(throttledAlert("web", "CPU_HIGH")))
	assert.False(t, th.Suppress(throttledAlert("db", "CPU_HIGH")),
		"another service has its own budget")
}

func TestThrottlerDuplicateWindow(t *testing.T) {
	t.Parallel()

	th := NewThrottler(15*time.Minute, 100)
	advance := fixedClock(th, time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC))

	assert.False(t, th.Suppress(throttledAlert("web", "CPU_HIGH")))

	advance(time.Date(2026, 8, 24, 14, 5, 0, 0, time.UTC))
	assert.True(t, th.Suppress(throttledAlert("web", "CPU_HIGH")),
		"same (service, alertType) inside the window is a duplicate")

	advance(time.Date(2026, 8, 24, 14, 20, 0, 0, time.UTC))
	assert.False(t, th.Suppress(throttledAlert("web", "CPU_HIGH")),
		"window has elapsed")
}

func TestThrottlerSuppressedEventRecordsNothing(t *testing.T) {
	t.Parallel()

	th := NewThrottler(15*time.Minute, 1)
	advance := fixedClock(th, time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC))

	assert.False(t, th.Suppress(throttledAlert("web", "CPU_HIGH")))
	assert.True(t, th.Suppress(throttledAlert("web", "MEMORY_HIGH")), "budget spent")

	// The suppressed MEMORY_HIGH must not have entered the duplicate map:
	// in the next hour it is accepted immediately.
	advance(time.Date(2026, 8, 24, 15, 0, 1, 0, time.UTC))
	assert.False(t, th.Suppress(throttledAlert("web", "MEMORY_HIGH")))
}

func TestThrottlerHourBucketResets(t *testing.T) {
	t.Parallel()

	th := NewThrottler(time.Minute, 1)
	advance := fixedClock(th, time.Date(2026, 8, 24, 14, 59, 0, 0, time.UTC))

	assert.False(t, th.Suppress(throttledAlert("web", "CPU_HIGH")))
	assert.True(t, th.Suppress(throttledAlert("web", "MEMORY_HIGH")))

	advance(time.Date(2026, 8, 24, 15, 1, 0, 0, time.UTC))
	assert.False(t, th.Suppress(throttledAlert("web", "MEMORY_HIGH")),
		"new hour bucket starts a fresh budget")
}
