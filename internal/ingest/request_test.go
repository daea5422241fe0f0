package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *event.Time {
	et := event.At(t)
	return &et
}

func newTestValidator() *Validator {
	v := NewValidator(1_000_000, []string{"dev", "staging", "production", "unknown"})
	v.now = func() time.Time {
		return time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local)
	}
	return v
}

func validRequest() *MetricRequest {
	return &MetricRequest{
		ServiceName: "Payments-API",
		MetricType:  "cpu",
		MetricValue: floatPtr(63.5),
		Environment: "production",
	}
}

func TestCheckAcceptsValidRequest(t *testing.T) {
	t.Parallel()
	assert.Empty(t, newTestValidator().Check(validRequest()))
}

func TestCheckRejections(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.Local)
	tests := []struct {
		name   string
		mutate func(*MetricRequest)
	}{
		{"missing service name", func(r *MetricRequest) { r.ServiceName = "" }},
		{"service name too short", func(r *MetricRequest) { r.ServiceName = "a" }},
		{"service name bad characters", func(r *MetricRequest) { r.ServiceName = "pay ments!" }},
		{"unknown metric type", func(r *MetricRequest) { r.MetricType = "TEMPERATURE" }},
		{"missing metric value", func(r *MetricRequest) { r.MetricValue = nil }},
		{"negative value", func(r *MetricRequest) { r.MetricValue = floatPtr(-1) }},
		{"value above ceiling", func(r *MetricRequest) { r.MetricValue = floatPtr(2_000_000) }},
		{"percentage above 100", func(r *MetricRequest) { r.MetricValue = floatPtr(130) }},
		{"timestamp too old", func(r *MetricRequest) { r.Timestamp = timePtr(now.Add(-25 * time.Hour)) }},
		{"timestamp too far ahead", func(r *MetricRequest) { r.Timestamp = timePtr(now.Add(2 * time.Hour)) }},
		{"unknown environment", func(r *MetricRequest) { r.Environment = "qa" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := validRequest()
			tt.mutate(req)
			assert.NotEmpty(t, newTestValidator().Check(req))
		})
	}
}

func TestCheckAllowsNonPercentageAbove100(t *testing.T) {
	t.Parallel()

	req := validRequest()
	req.MetricType = "LATENCY"
	req.MetricValue = floatPtr(1500)
	assert.Empty(t, newTestValidator().Check(req))
}

func TestToEventNormalizes(t *testing.T) {
	t.Parallel()

	req := validRequest()
	req.ServiceName = "  Payments-API "
	m := req.ToEvent()

	assert.NotEmpty(t, m.EventID)
	assert.Equal(t, "payments-api", m.ServiceName)
	assert.Equal(t, event.MetricCPU, m.MetricType)
	assert.Equal(t, 63.5, m.MetricValue)
	assert.Equal(t, "percent", m.Unit, "unit defaults from the metric type")
	assert.False(t, m.Timestamp.IsZero(), "timestamp defaults to now")
	require.NotNil(t, m.CreatedAt)
}

func TestToEventKeepsExplicitFields(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 8, 24, 11, 30, 0, 0, time.Local)
	req := validRequest()
	req.Unit = "cores"
	req.Timestamp = timePtr(ts)
	req.Tags = map[string]string{"region": "eu-west-1"}

	m := req.ToEvent()
	assert.Equal(t, "cores", m.Unit)
	assert.True(t, m.Timestamp.Equal(ts))
	assert.Equal(t, "eu-west-1", m.Tag("region"))
}

func TestToEventDefaultsEnvironment(t *testing.T) {
	t.Parallel()

	req := validRequest()
	req.Environment = ""
	assert.Equal(t, "unknown", req.ToEvent().Environment)
}
