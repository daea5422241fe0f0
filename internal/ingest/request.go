// Package ingest implements the HTTP ingestion surface: request validation,
// normalization into MetricEvents, and publication onto the raw-metrics
// topic.
package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

// serviceNamePattern constrains service names to a safe identifier alphabet.
var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,100}$`)

// MetricRequest is the inbound JSON body for a single metric sample.
type MetricRequest struct {
	ServiceName string            `json:"serviceName" validate:"required"`
	MetricType  string            `json:"metricType" validate:"required"`
	MetricValue *float64          `json:"metricValue" validate:"required"`
	Unit        string            `json:"unit,omitempty"`
	Timestamp   *event.Time       `json:"timestamp,omitempty"`
	Hostname    string            `json:"hostname,omitempty" validate:"omitempty,max=255"`
	Environment string            `json:"environment,omitempty"`
	Version     string            `json:"version,omitempty" validate:"omitempty,max=50"`
	Tags        map[string]string `json:"tags,omitempty" validate:"omitempty,max=20"`
}

// Validator applies structural and business validation to metric requests.
type Validator struct {
	validate            *validator.Validate
	maxMetricValue      float64
	allowedEnvironments map[string]bool

	now func() time.Time
}

// NewValidator builds a Validator with the configured ceilings.
func NewValidator(maxMetricValue float64, allowedEnvironments []string) *Validator {
	allowed := make(map[string]bool, len(allowedEnvironments))
	for _, env := range allowedEnvironments {
		allowed[strings.ToLower(strings.TrimSpace(env))] = true
	}
	return &Validator{
		validate:            validator.New(validator.WithRequiredStructEnabled()),
		maxMetricValue:      maxMetricValue,
		allowedEnvironments: allowed,
		now:                 time.Now,
	}
}

// Check returns every validation failure for req, or nil when it is
// acceptable.
func (v *Validator) Check(req *MetricRequest) []string {
	var problems []string

	if err := v.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors, ok := err.(validator.ValidationErrors); ok {
			fieldErrs = errors
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s: failed %s validation", fe.Field(), fe.Tag()))
		}
		if len(fieldErrs) == 0 {
			problems = append(problems, err.Error())
		}
	}

	if req.ServiceName != "" && !serviceNamePattern.MatchString(strings.TrimSpace(req.ServiceName)) {
		problems = append(problems, "serviceName: must be 2-100 characters of letters, digits, dot, underscore, or dash")
	}

	metricType, typeErr := event.ParseMetricType(req.MetricType)
	if req.MetricType != "" && typeErr != nil {
		problems = append(problems, fmt.Sprintf("metricType: %v", typeErr))
	}

	if req.MetricValue != nil {
		value := *req.MetricValue
		if value < 0 {
			problems = append(problems, "metricValue: must not be negative")
		}
		if value > v.maxMetricValue {
			problems = append(problems, fmt.Sprintf("metricValue: exceeds maximum %g", v.maxMetricValue))
		}
		if typeErr == nil && metricType.Percentage() && value > 100 {
			problems = append(problems, "metricValue: percentage metrics are capped at 100")
		}
	}

	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		now := v.now()
		if req.Timestamp.Before(now.Add(-24 * time.Hour)) {
			problems = append(problems, "timestamp: older than 24 hours")
		}
		if req.Timestamp.After(now.Add(time.Hour)) {
			problems = append(problems, "timestamp: more than 1 hour in the future")
		}
	}

	if req.Environment != "" && !v.allowedEnvironments[strings.ToLower(strings.TrimSpace(req.Environment))] {
		problems = append(problems, fmt.Sprintf("environment: %q is not allowed", req.Environment))
	}

	return problems
}

// ToEvent normalizes a validated request into an immutable MetricEvent:
// fresh event ID, lowercased service name, defaulted unit and timestamp.
func (req *MetricRequest) ToEvent() *event.MetricEvent {
	metricType, _ := event.ParseMetricType(req.MetricType)

	timestamp := event.Now()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		timestamp = *req.Timestamp
	}

	unit := req.Unit
	if unit == "" {
		unit = metricType.Unit()
	}

	environment := strings.ToLower(strings.TrimSpace(req.Environment))
	if environment == "" {
		environment = "unknown"
	}

	created := event.Now()
	m := &event.MetricEvent{
		EventID:     uuid.NewString(),
		ServiceName: strings.ToLower(strings.TrimSpace(req.ServiceName)),
		MetricType:  metricType,
		MetricValue: 0,
		Unit:        unit,
		Timestamp:   timestamp,
		Hostname:    strings.TrimSpace(req.Hostname),
		Environment: environment,
		Version:     strings.TrimSpace(req.Version),
		CreatedAt:   &created,
		Tags:        req.Tags,
	}
	if req.MetricValue != nil {
		m.MetricValue = *req.MetricValue
	}
	return m
}
