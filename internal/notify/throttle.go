// Package notify consumes alert events and dispatches them to the configured
// channels, throttled so operators see signal instead of a flood.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// duplicateRetention bounds how long accepted duplicates are remembered.
const duplicateRetention = 2 * time.Hour

// Throttler suppresses redundant notifications with two independent checks,
// applied in order: a per-(service, alertType) duplicate window, then a
// per-service hourly budget. State is process-local.
type Throttler struct {
	window  time.Duration
	maxHour int

	mu       sync.Mutex
	accepted map[string]time.Time // (service, alertType) -> last accepted
	hourly   map[string]int       // service:hourBucket -> count

	now func() time.Time
}

// NewThrottler builds a Throttler. window is the duplicate-suppression span;
// maxPerHour is each service's hourly budget.
func NewThrottler(window time.Duration, maxPerHour int) *Throttler {
	return &Throttler{
		window:   window,
		maxHour:  maxPerHour,
		accepted: make(map[string]time.Time),
		hourly:   make(map[string]int),
		now:      time.Now,
	}
}

// Suppress decides whether a is throttled. On acceptance it records the event
// against both checks; a suppressed event records nothing.
func (t *Throttler) Suppress(a *event.AlertEvent) bool {
	now := t.now()
	dupKey := a.ServiceName + ":" + a.AlertType
	hourKey := hourBucket(a.ServiceName, now)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweep(now)

	if last, seen := t.accepted[dupKey]; seen && now.Sub(last) < t.window {
		metrics.NotificationsSuppressed.WithLabelValues("duplicate").Inc()
		return true
	}
	if t.hourly[hourKey] >= t.maxHour {
		metrics.NotificationsSuppressed.WithLabelValues("rate_limit").Inc()
		return true
	}

	t.accepted[dupKey] = now
	t.hourly[hourKey]++
	return false
}

// sweep discards duplicate entries past retention and hour counters outside
// the current hour. Called under the mutex.
func (t *Throttler) sweep(now time.Time) {
	for key, at := range t.accepted {
		if now.Sub(at) > duplicateRetention {
			delete(t.accepted, key)
		}
	}
	current := now.Format("2006012415")
	for key := range t.hourly {
		if !strings.HasSuffix(key, ":"+current) {
			delete(t.hourly, key)
		}
	}
}

func hourBucket(service string, now time.Time) string {
	return fmt.Sprintf("%s:%s", service, now.Format("2006012415"))
}
