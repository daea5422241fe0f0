package bus

import (
	"context"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

// MetricPublisher publishes metric events keyed by service name, so samples
// from one service stay ordered within a partition.
type MetricPublisher struct {
	producer *Producer
}

// NewMetricPublisher wraps producer for the raw-metrics topic.
func NewMetricPublisher(producer *Producer) *MetricPublisher {
	return &MetricPublisher{producer: producer}
}

// PublishMetric encodes and publishes one metric event.
func (p *MetricPublisher) PublishMetric(ctx context.Context, m *event.MetricEvent) error {
	data, err := event.EncodeMetric(m)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, m.ServiceName, data)
}

// AlertPublisher publishes alert events keyed by service name.
type AlertPublisher struct {
	producer *Producer
}

// NewAlertPublisher wraps producer for the alerts topic.
func NewAlertPublisher(producer *Producer) *AlertPublisher {
	return &AlertPublisher{producer: producer}
}

// PublishAlert encodes and publishes one alert event.
func (p *AlertPublisher) PublishAlert(ctx context.Context, a *event.AlertEvent) error {
	data, err := event.EncodeAlert(a)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, a.ServiceName, data)
}
