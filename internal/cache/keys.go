package cache

import "fmt"

// Prefix namespaces every key the pipeline writes.
const Prefix = "monitoring:"

// MetricKey addresses the latest MetricEvent for a (service, metric type).
func MetricKey(service, metricType string) string {
	return fmt.Sprintf("%smetric:%s:%s", Prefix, service, metricType)
}

// AlertStateKey addresses the current AlertEvent for a (service, alert type).
// Absence of the key means no active alert.
func AlertStateKey(service, alertType string) string {
	return fmt.Sprintf("%salert:state:%s:%s", Prefix, service, alertType)
}

// PendingKey addresses the first-violation timestamp used to gate a trigger
// on the rule's minimum duration.
func PendingKey(service, alertType string) string {
	return fmt.Sprintf("%salert:pending:%s:%s", Prefix, service, alertType)
}

// StatsKey addresses the aggregate-statistics hash for a time window.
func StatsKey(service, metricType, window string) string {
	return fmt.Sprintf("%sstats:%s:%s:%s", Prefix, service, metricType, window)
}

// MetricScanPattern builds the keyspace pattern for latest-metric scans.
// An empty service matches every service.
func MetricScanPattern(service string) string {
	if service == "" {
		return Prefix + "metric:*"
	}
	return fmt.Sprintf("%smetric:%s:*", Prefix, service)
}
