package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

// ActiveSource supplies the active-alert snapshot emitted when a client joins
// the active-alerts stream. An empty service matches every service.
type ActiveSource interface {
	ActiveAlerts(ctx context.Context, service string) ([]event.AlertEvent, error)
}

// Server exposes the SSE routes over the shared hubs.
type Server struct {
	metricHub *Hub[*event.MetricEvent]
	alertHub  *Hub[*event.AlertEvent]
	latest    *LatestReader
	active    ActiveSource

	heartbeat  time.Duration
	bufferSize int
	logger     zerolog.Logger
}

// NewServer wires the streaming HTTP surface.
func NewServer(metricHub *Hub[*event.MetricEvent], alertHub *Hub[*event.AlertEvent], latest *LatestReader, active ActiveSource, heartbeat time.Duration, bufferSize int, logger zerolog.Logger) *Server {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Server{
		metricHub:  metricHub,
		alertHub:   alertHub,
		latest:     latest,
		active:     active,
		heartbeat:  heartbeat,
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Routes returns the streaming router. CORS is permissive: dashboards are
// served from arbitrary origins.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Route("/api/stream", func(r chi.Router) {
		r.Get("/metrics", s.streamMetricsCombined)
		r.Get("/metrics/latest", s.streamMetricsLatest)
		r.Get("/metrics/heartbeat", s.streamHeartbeat)
		r.Get("/metrics/{service}", s.streamMetricsService)
		r.Get("/alerts", s.streamAlerts(""))
		r.Get("/alerts/active", s.streamAlertsActive)
		r.Get("/alerts/critical", s.streamAlertsCritical)
		r.Get("/alerts/{service}", s.streamAlertsByService)
	})
	return r
}

// sseWriter wraps one SSE connection.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for event streaming. A nil return means
// the connection cannot stream and the error has been written.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}
}

// send writes one event frame. A write error means the client is gone.
func (s *sseWriter) send(id, name string, data []byte) error {
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) sendMetric(name string, m *event.MetricEvent) error {
	data, err := event.EncodeMetric(m)
	if err != nil {
		return nil
	}
	return s.send(m.EventID, name, data)
}

func (s *sseWriter) sendAlert(name string, a *event.AlertEvent) error {
	data, err := event.EncodeAlert(a)
	if err != nil {
		return nil
	}
	return s.send(a.AlertID, name, data)
}

// alertEventName maps an alert's status to its SSE event name.
func alertEventName(status event.AlertStatus) string {
	switch status {
	case event.StatusActive:
		return "alert-triggered"
	case event.StatusResolved, event.StatusAutoResolved:
		return "alert-resolved"
	case event.StatusAcknowledged:
		return "alert-acknowledged"
	default:
		return "alert-update"
	}
}

// streamMetricsCombined interleaves the live metric stream with the periodic
// latest-value scan. Each (service, metricType) pair is emitted at most once
// per connection; the doubled buffer absorbs the interleave of both sources.
func (s *Server) streamMetricsCombined(w http.ResponseWriter, r *http.Request) {
	out := newSSEWriter(w)
	if out == nil {
		return
	}
	ctx := r.Context()

	sub := s.metricHub.Subscribe(nil, s.bufferSize*2, DropOldest)
	defer sub.Close()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	seen := make(map[string]struct{})
	emit := func(name string, m *event.MetricEvent) error {
		key := m.ServiceName + ":" + string(m.MetricType)
		if _, dup := seen[key]; dup {
			return nil
		}
		seen[key] = struct{}{}
		return out.sendMetric(name, m)
	}

	for _, m := range s.latest.Snapshot(ctx, "") {
		if emit("latest-metric", m) != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.C():
			if !ok {
				return
			}
			if emit("metric", m) != nil {
				return
			}
		case <-ticker.C:
			for _, m := range s.latest.Snapshot(ctx, "") {
				if emit("latest-metric", m) != nil {
					return
				}
			}
		}
	}
}

// streamMetricsService streams live metrics for one service. The filter runs
// at the subscriber so the shared consumer stream stays unfiltered.
func (s *Server) streamMetricsService(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	out := newSSEWriter(w)
	if out == nil {
		return
	}
	ctx := r.Context()

	sub := s.metricHub.Subscribe(func(m *event.MetricEvent) bool {
		return m.ServiceName == service
	}, s.bufferSize, DropOldest)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.C():
			if !ok {
				return
			}
			if out.sendMetric("metric", m) != nil {
				return
			}
		}
	}
}

// streamMetricsLatest emits the cached latest values on every heartbeat tick.
// Only the most recent snapshot matters, so there is no buffering between
// ticks.
func (s *Server) streamMetricsLatest(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("serviceName")
	out := newSSEWriter(w)
	if out == nil {
		return
	}
	ctx := r.Context()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	emitSnapshot := func() bool {
		for _, m := range s.latest.Snapshot(ctx, service) {
			if out.sendMetric("latest-metric", m) != nil {
				return false
			}
		}
		return true
	}

	if !emitSnapshot() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !emitSnapshot() {
				return
			}
		}
	}
}

// streamHeartbeat ticks a liveness event so intermediaries keep the
// connection open.
func (s *Server) streamHeartbeat(w http.ResponseWriter, r *http.Request) {
	out := newSSEWriter(w)
	if out == nil {
		return
	}
	ctx := r.Context()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	beat := func() error {
		ts := event.Now()
		payload := fmt.Sprintf(`{"timestamp":"%s"}`, ts.Format("2006-01-02T15:04:05"))
		return out.send("", "heartbeat", []byte(payload))
	}

	if beat() != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if beat() != nil {
				return
			}
		}
	}
}

// streamAlerts streams alert lifecycle events, optionally filtered to one
// service. Event names follow the alert's status.
func (s *Server) streamAlerts(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveAlertStream(w, r, service, nil, "")
	}
}

func (s *Server) streamAlertsByService(w http.ResponseWriter, r *http.Request) {
	s.serveAlertStream(w, r, chi.URLParam(r, "service"), nil, "")
}

// streamAlertsActive opens with a snapshot of currently unresolved alerts,
// then follows with live lifecycle events.
func (s *Server) streamAlertsActive(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("serviceName")
	out := newSSEWriter(w)
	if out == nil {
		return
	}
	ctx := r.Context()

	sub := s.alertHub.Subscribe(func(a *event.AlertEvent) bool {
		return service == "" || a.ServiceName == service
	}, s.bufferSize, DropOldest)
	defer sub.Close()

	active, err := s.active.ActiveAlerts(ctx, service)
	if err != nil {
		s.logger.Warn().Err(err).Msg("active-alert snapshot failed, streaming live only")
	}
	for i := range active {
		if out.sendAlert("alert-active", &active[i]) != nil {
			return
		}
	}

	s.followAlerts(ctx, out, sub, "")
}

// streamAlertsCritical streams only CRITICAL alerts under a fixed event name.
func (s *Server) streamAlertsCritical(w http.ResponseWriter, r *http.Request) {
	s.serveAlertStream(w, r, "", func(a *event.AlertEvent) bool {
		return a.Severity == event.SeverityCritical
	}, "alert-critical")
}

// serveAlertStream is the shared live-alert loop. A non-empty fixedName
// overrides the status-derived event name.
func (s *Server) serveAlertStream(w http.ResponseWriter, r *http.Request, service string, extra func(*event.AlertEvent) bool, fixedName string) {
	out := newSSEWriter(w)
	if out == nil {
		return
	}
	ctx := r.Context()

	sub := s.alertHub.Subscribe(func(a *event.AlertEvent) bool {
		if service != "" && a.ServiceName != service {
			return false
		}
		return extra == nil || extra(a)
	}, s.bufferSize, DropOldest)
	defer sub.Close()

	s.followAlerts(ctx, out, sub, fixedName)
}

func (s *Server) followAlerts(ctx context.Context, out *sseWriter, sub *Subscription[*event.AlertEvent], fixedName string) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-sub.C():
			if !ok {
				return
			}
			name := fixedName
			if name == "" {
				name = alertEventName(a.Status)
			}
			if out.sendAlert(name, a) != nil {
				return
			}
		}
	}
}
