package ingest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
	"github.com/AhmedRagabMogoda/System-Monitoring/internal/metrics"
)

// maxBatchSize bounds one batch submission.
const maxBatchSize = 100

// Publisher sends validated metric events onto the raw-metrics topic.
type Publisher interface {
	PublishMetric(ctx context.Context, m *event.MetricEvent) error
}

// Handler serves the ingestion API.
type Handler struct {
	validator *Validator
	publisher Publisher
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewHandler wires the ingestion surface. ratePerSecond and burst bound the
// process-wide accept rate.
func NewHandler(v *Validator, publisher Publisher, ratePerSecond float64, burst int, logger zerolog.Logger) *Handler {
	return &Handler{
		validator: v,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:    logger,
	}
}

// Routes returns the ingestion router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Route("/api/metrics", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/", h.submitMetric)
			r.Post("/batch", h.submitBatch)
		})
	})
	return r
}

// response is the common API envelope.
type response struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
	EventID string   `json:"eventId,omitempty"`
	Count   int      `json:"count,omitempty"`
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, response{
				Success: false,
				Message: "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Success: true, Message: "ok"})
}

// submitMetric accepts one sample. Publication is synchronous; 202 means the
// broker acknowledged the record.
func (h *Handler) submitMetric(w http.ResponseWriter, r *http.Request) {
	var req MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.MetricsRejected.Inc()
		writeJSON(w, http.StatusBadRequest, response{
			Success: false,
			Message: "malformed request body",
			Errors:  []string{err.Error()},
		})
		return
	}

	if problems := h.validator.Check(&req); len(problems) > 0 {
		metrics.MetricsRejected.Inc()
		writeJSON(w, http.StatusBadRequest, response{
			Success: false,
			Message: "validation failed",
			Errors:  problems,
		})
		return
	}

	m := req.ToEvent()
	if err := h.publisher.PublishMetric(r.Context(), m); err != nil {
		h.logger.Error().Err(err).Str("service", m.ServiceName).Msg("metric publish failed")
		writeJSON(w, http.StatusServiceUnavailable, response{
			Success: false,
			Message: "metric could not be accepted",
		})
		return
	}

	metrics.MetricsIngested.WithLabelValues(string(m.MetricType)).Inc()
	writeJSON(w, http.StatusAccepted, response{
		Success: true,
		Message: "metric accepted",
		EventID: m.EventID,
	})
}

// submitBatch accepts 1-100 samples. The batch is atomic in validation:
// any invalid entry rejects the whole submission before anything publishes.
func (h *Handler) submitBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		metrics.MetricsRejected.Inc()
		writeJSON(w, http.StatusBadRequest, response{
			Success: false,
			Message: "malformed request body",
			Errors:  []string{err.Error()},
		})
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatchSize {
		metrics.MetricsRejected.Inc()
		writeJSON(w, http.StatusBadRequest, response{
			Success: false,
			Message: "batch size must be between 1 and 100",
		})
		return
	}

	var problems []string
	for i := range reqs {
		for _, p := range h.validator.Check(&reqs[i]) {
			problems = append(problems, "["+reqs[i].ServiceName+"] "+p)
		}
	}
	if len(problems) > 0 {
		metrics.MetricsRejected.Inc()
		writeJSON(w, http.StatusBadRequest, response{
			Success: false,
			Message: "validation failed",
			Errors:  problems,
		})
		return
	}

	accepted := 0
	for i := range reqs {
		m := reqs[i].ToEvent()
		if err := h.publisher.PublishMetric(r.Context(), m); err != nil {
			h.logger.Error().Err(err).
				Str("service", m.ServiceName).
				Int("accepted", accepted).
				Msg("batch publish failed mid-way")
			writeJSON(w, http.StatusServiceUnavailable, response{
				Success: false,
				Message: "batch partially accepted",
				Count:   accepted,
			})
			return
		}
		metrics.MetricsIngested.WithLabelValues(string(m.MetricType)).Inc()
		accepted++
	}

	writeJSON(w, http.StatusAccepted, response{
		Success: true,
		Message: "batch accepted",
		Count:   accepted,
	})
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
