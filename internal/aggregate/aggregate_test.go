package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

type memCache struct {
	mu    sync.Mutex
	data  map[string]string
	fails bool
}

func (m *memCache) Set(_ context.Context, key, value string, _ time.Duration) bool {
	if m.fails {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[key] = value
	return true
}

type memHistory struct {
	mu       sync.Mutex
	inserted []*event.MetricEvent
	err      error
}

func (m *memHistory) InsertMetric(_ context.Context, e *event.MetricEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, e)
	return m.err
}

func sample() *event.MetricEvent {
	return &event.MetricEvent{
		ServiceName: "payments",
		MetricType:  event.MetricMemory,
		MetricValue: 63.2,
		Timestamp:   event.Now(),
	}
}

func TestRecordWritesBothSinks(t *testing.T) {
	t.Parallel()

	c := &memCache{}
	h := &memHistory{}
	agg := New(c, h, 10*time.Minute, zerolog.Nop())

	res := agg.Record(context.Background(), sample())

	assert.True(t, res.Cached)
	assert.True(t, res.Persisted)
	require.Len(t, h.inserted, 1)

	raw, ok := c.data["monitoring:metric:payments:MEMORY"]
	require.True(t, ok)
	decoded, err := event.DecodeMetric([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 63.2, decoded.MetricValue)
}

func TestRecordToleratesHistoryFailure(t *testing.T) {
	t.Parallel()

	c := &memCache{}
	h := &memHistory{err: errors.New("pg down")}
	agg := New(c, h, 10*time.Minute, zerolog.Nop())

	res := agg.Record(context.Background(), sample())

	assert.True(t, res.Cached)
	assert.False(t, res.Persisted)
}

func TestRecordToleratesCacheFailure(t *testing.T) {
	t.Parallel()

	c := &memCache{fails: true}
	h := &memHistory{}
	agg := New(c, h, 10*time.Minute, zerolog.Nop())

	res := agg.Record(context.Background(), sample())

	assert.False(t, res.Cached)
	assert.True(t, res.Persisted)
}
