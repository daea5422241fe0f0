package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

type fakePublisher struct {
	published []*event.MetricEvent
	err       error
}

func (f *fakePublisher) PublishMetric(_ context.Context, m *event.MetricEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, m)
	return nil
}

func newTestHandler(pub *fakePublisher) *Handler {
	v := NewValidator(1_000_000, []string{"dev", "staging", "production", "unknown"})
	return NewHandler(v, pub, 1000, 1000, zerolog.Nop())
}

func post(t *testing.T, h *Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestSubmitMetricAccepted(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	rec := post(t, newTestHandler(pub), "/api/metrics", map[string]any{
		"serviceName": "web",
		"metricType":  "CPU",
		"metricValue": 72.5,
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.EventID)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "web", pub.published[0].ServiceName)
}

func TestSubmitMetricValidationEnvelope(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	rec := post(t, newTestHandler(pub), "/api/metrics", map[string]any{
		"serviceName": "w",
		"metricType":  "NOPE",
		"metricValue": -5,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "validation failed", resp.Message)
	assert.GreaterOrEqual(t, len(resp.Errors), 3)
	assert.Empty(t, pub.published, "invalid requests never publish")
}

func TestSubmitMetricMalformedBody(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakePublisher{})
	req := httptest.NewRequest(http.MethodPost, "/api/metrics", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMetricBrokerDown(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("broker unreachable")}
	rec := post(t, newTestHandler(pub), "/api/metrics", map[string]any{
		"serviceName": "web",
		"metricType":  "CPU",
		"metricValue": 50,
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitBatch(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	batch := []map[string]any{
		{"serviceName": "web", "metricType": "CPU", "metricValue": 10},
		{"serviceName": "db", "metricType": "MEMORY", "metricValue": 20},
	}
	rec := post(t, newTestHandler(pub), "/api/metrics/batch", batch)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, pub.published, 2)
}

func TestSubmitBatchRejectsWhole(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	batch := []map[string]any{
		{"serviceName": "web", "metricType": "CPU", "metricValue": 10},
		{"serviceName": "db", "metricType": "BOGUS", "metricValue": 20},
	}
	rec := post(t, newTestHandler(pub), "/api/metrics/batch", batch)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.published, "one invalid entry rejects the whole batch")
}

func TestSubmitBatchSizeBounds(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakePublisher{})

	rec := post(t, h, "/api/metrics/batch", []map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := make([]map[string]any, maxBatchSize+1)
	for i := range big {
		big[i] = map[string]any{"serviceName": "web", "metricType": "CPU", "metricValue": 1}
	}
	rec = post(t, h, "/api/metrics/batch", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	v := NewValidator(1_000_000, []string{"production"})
	h := NewHandler(v, &fakePublisher{}, 1, 1, zerolog.Nop())

	body := map[string]any{"serviceName": "web", "metricType": "CPU", "metricValue": 1}
	first := post(t, h, "/api/metrics", body)
	second := post(t, h, "/api/metrics", body)

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/metrics/health", nil)
	rec := httptest.NewRecorder()
	newTestHandler(&fakePublisher{}).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
