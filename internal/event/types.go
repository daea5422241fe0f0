package event

import (
	"fmt"
	"strings"
)

// MetricType is the closed set of metric kinds the pipeline understands.
// The wire representation is the uppercase constant name.
type MetricType string

const (
	MetricCPU              MetricType = "CPU"
	MetricMemory           MetricType = "MEMORY"
	MetricLatency          MetricType = "LATENCY"
	MetricErrorRate        MetricType = "ERROR_RATE"
	MetricThroughput       MetricType = "THROUGHPUT"
	MetricDiskIO           MetricType = "DISK_IO"
	MetricNetworkBandwidth MetricType = "NETWORK_BANDWIDTH"
	MetricDBConnections    MetricType = "DB_CONNECTIONS"
	MetricQueueDepth       MetricType = "QUEUE_DEPTH"
	MetricCacheHitRate     MetricType = "CACHE_HIT_RATE"
	MetricHeapMemory       MetricType = "HEAP_MEMORY"
	MetricThreadCount      MetricType = "THREAD_COUNT"
	MetricGCTime           MetricType = "GC_TIME"
	MetricCustom           MetricType = "CUSTOM"
)

// metricTypeInfo carries the default unit and human-readable display name for
// each metric type.
type metricTypeInfo struct {
	unit        string
	displayName string
}

var metricTypes = map[MetricType]metricTypeInfo{
	MetricCPU:              {"percent", "CPU Utilization"},
	MetricMemory:           {"percent", "Memory Utilization"},
	MetricLatency:          {"milliseconds", "Response Latency"},
	MetricErrorRate:        {"percent", "Error Rate"},
	MetricThroughput:       {"requests_per_second", "Request Throughput"},
	MetricDiskIO:           {"operations_per_second", "Disk I/O"},
	MetricNetworkBandwidth: {"megabytes_per_second", "Network Bandwidth"},
	MetricDBConnections:    {"count", "Database Connections"},
	MetricQueueDepth:       {"count", "Queue Depth"},
	MetricCacheHitRate:     {"percent", "Cache Hit Rate"},
	MetricHeapMemory:       {"megabytes", "Heap Memory"},
	MetricThreadCount:      {"count", "Thread Count"},
	MetricGCTime:           {"milliseconds", "GC Time"},
	MetricCustom:           {"custom", "Custom Metric"},
}

// Valid reports whether t is one of the known metric types.
func (t MetricType) Valid() bool {
	_, ok := metricTypes[t]
	return ok
}

// Unit returns the default unit for the metric type ("custom" for unknown).
func (t MetricType) Unit() string {
	if info, ok := metricTypes[t]; ok {
		return info.unit
	}
	return "custom"
}

// DisplayName returns the human-readable name used in alert messages.
func (t MetricType) DisplayName() string {
	if info, ok := metricTypes[t]; ok {
		return info.displayName
	}
	return string(t)
}

// Percentage reports whether values of this type are constrained to 0-100.
// True when the default unit is percent-based or the type name carries RATE.
func (t MetricType) Percentage() bool {
	return strings.Contains(t.Unit(), "percent") || strings.Contains(string(t), "RATE")
}

// ParseMetricType converts a case-insensitive string into a MetricType.
func ParseMetricType(s string) (MetricType, error) {
	t := MetricType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown metric type %q", s)
	}
	return t, nil
}

// Severity orders alerts for routing and display.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severities = map[Severity]struct {
	priority int
	color    string
}{
	SeverityLow:      {1, "#3498db"},
	SeverityMedium:   {2, "#f39c12"},
	SeverityHigh:     {3, "#e67e22"},
	SeverityCritical: {4, "#e74c3c"},
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severities[s]
	return ok
}

// Priority returns the numeric rank (1=LOW .. 4=CRITICAL), 0 for unknown.
func (s Severity) Priority() int {
	return severities[s].priority
}

// Color returns the hex colour associated with the severity, used by
// dashboard payloads and slack attachments.
func (s Severity) Color() string {
	return severities[s].color
}

// ParseSeverity converts a case-insensitive string into a Severity.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusActive       AlertStatus = "ACTIVE"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
	StatusAutoResolved AlertStatus = "AUTO_RESOLVED"
	StatusSuppressed   AlertStatus = "SUPPRESSED"
	StatusPending      AlertStatus = "PENDING"
)

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved,
		StatusAutoResolved, StatusSuppressed, StatusPending:
		return true
	}
	return false
}

// Resolved reports whether the status is a terminal resolved state.
func (s AlertStatus) Resolved() bool {
	return s == StatusResolved || s == StatusAutoResolved
}

// RequiresAction reports whether the alert still needs operator attention.
func (s AlertStatus) RequiresAction() bool {
	return s == StatusActive || s == StatusPending
}

// AlertTypeFor derives the alert-state scoping label from a rule's metric
// type and severity, e.g. (CPU, HIGH) -> "CPU_HIGH".
func AlertTypeFor(metric MetricType, severity Severity) string {
	return strings.ToUpper(string(metric) + "_" + string(severity))
}
