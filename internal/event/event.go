// Package event defines the two wire events every service in the pipeline
// agrees on — MetricEvent on the metrics.raw topic and AlertEvent on the
// alerts topic — together with their closed enums and JSON codec.
//
// The wire form is self-describing JSON with lowerCamelCase field names.
// Timestamps are serialized as yyyy-MM-ddTHH:mm:ss without a timezone and are
// interpreted as the producer's local clock. Unknown fields are ignored on
// read; optional maps are omitted when absent.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeLayout is the wire format for all event timestamps.
const timeLayout = "2006-01-02T15:04:05"

// Time wraps time.Time with the pipeline's second-precision, zone-less JSON
// representation.
type Time struct {
	time.Time
}

// At truncates t to second precision and wraps it as an event Time.
func At(t time.Time) Time {
	return Time{t.Truncate(time.Second)}
}

// Now returns the current wall clock as an event Time.
func Now() Time {
	return At(time.Now())
}

// MarshalJSON renders the timestamp as "yyyy-MM-ddTHH:mm:ss".
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(timeLayout))
}

// UnmarshalJSON parses the zone-less wire form. An empty or null value leaves
// the zero Time.
func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseInLocation(timeLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("parse event time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MetricEvent is a single time-stamped measurement emitted by a monitored
// service. It is created by the ingestion publisher from a validated request
// and immutable thereafter.
type MetricEvent struct {
	EventID     string            `json:"eventId,omitempty"`
	ServiceName string            `json:"serviceName"`
	MetricType  MetricType        `json:"metricType"`
	MetricValue float64           `json:"metricValue"`
	Unit        string            `json:"unit,omitempty"`
	Timestamp   Time              `json:"timestamp"`
	Hostname    string            `json:"hostname,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Version     string            `json:"version,omitempty"`
	CreatedAt   *Time             `json:"createdAt,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Tag returns the tag value for key, or "" when unset.
func (m *MetricEvent) Tag(key string) string {
	return m.Tags[key]
}

// AddTag sets a tag, allocating the map on first use.
func (m *MetricEvent) AddTag(key, value string) {
	if m.Tags == nil {
		m.Tags = make(map[string]string)
	}
	m.Tags[key] = value
}

// AlertEvent records a rule violation and its lifecycle. It is created by the
// alert engine on trigger, mutated exactly once on resolution, and immutable
// afterwards.
type AlertEvent struct {
	AlertID         string            `json:"alertId"`
	ServiceName     string            `json:"serviceName"`
	AlertType       string            `json:"alertType"`
	Severity        Severity          `json:"severity"`
	Status          AlertStatus       `json:"status"`
	Message         string            `json:"message"`
	Description     string            `json:"description,omitempty"`
	ThresholdValue  float64           `json:"thresholdValue"`
	CurrentValue    float64           `json:"currentValue"`
	TriggeredAt     Time              `json:"triggeredAt"`
	ResolvedAt      *Time             `json:"resolvedAt,omitempty"`
	DurationSeconds int64             `json:"durationSeconds,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Hostname        string            `json:"hostname,omitempty"`
	Environment     string            `json:"environment,omitempty"`
	RunbookURL      string            `json:"runbookUrl,omitempty"`
	CreatedAt       *Time             `json:"createdAt,omitempty"`
}

// Active reports whether the alert is currently in the ACTIVE state.
func (a *AlertEvent) Active() bool {
	return a.Status == StatusActive
}

// Resolve transitions the alert to RESOLVED at the given instant, recording
// the observed value and the floor-seconds duration since it triggered.
// The alert ID is unchanged: it identifies one alert instance across its
// whole ACTIVE -> RESOLVED lifecycle.
func (a *AlertEvent) Resolve(at time.Time, currentValue float64) {
	resolved := At(at)
	a.Status = StatusResolved
	a.ResolvedAt = &resolved
	a.CurrentValue = currentValue
	if d := resolved.Sub(a.TriggeredAt.Time); d > 0 {
		a.DurationSeconds = int64(d.Seconds())
	}
}

// EncodeMetric serializes a MetricEvent to its wire form.
func EncodeMetric(m *MetricEvent) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metric event: %w", err)
	}
	return data, nil
}

// DecodeMetric parses a MetricEvent from its wire form, validating the closed
// enum fields. Unknown JSON fields are ignored.
func DecodeMetric(data []byte) (*MetricEvent, error) {
	var m MetricEvent
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metric event: %w", err)
	}
	if !m.MetricType.Valid() {
		return nil, fmt.Errorf("decode metric event: unknown metric type %q", m.MetricType)
	}
	if strings.TrimSpace(m.ServiceName) == "" {
		return nil, fmt.Errorf("decode metric event: missing service name")
	}
	return &m, nil
}

// EncodeAlert serializes an AlertEvent to its wire form.
func EncodeAlert(a *AlertEvent) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode alert event: %w", err)
	}
	return data, nil
}

// DecodeAlert parses an AlertEvent from its wire form.
func DecodeAlert(data []byte) (*AlertEvent, error) {
	var a AlertEvent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode alert event: %w", err)
	}
	if !a.Status.Valid() {
		return nil, fmt.Errorf("decode alert event: unknown status %q", a.Status)
	}
	return &a, nil
}
