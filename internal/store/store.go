// Package store is the PostgreSQL-backed history layer for the monitoring
// pipeline: metric history, alert history, and the alert-rule table the
// processing service evaluates against.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AhmedRagabMogoda/System-Monitoring/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// AlertRule is a threshold rule loaded from the alert_rules table. A
// ServiceName of "*" applies the rule to every service.
type AlertRule struct {
	ID              int64
	RuleName        string
	ServiceName     string
	MetricType      event.MetricType
	ThresholdValue  float64
	Operator        string
	DurationMinutes int
	Severity        event.Severity
	Enabled         bool
	Description     string
}

// Wildcard reports whether the rule applies to all services.
func (r *AlertRule) Wildcard() bool {
	return r.ServiceName == "*"
}

// Store wraps a pgxpool connection with the pipeline's queries.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pgxpool connection to dsn and pings the database.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema applies the embedded DDL. Every statement is idempotent, so
// repeated startups are safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// --- Metric history ---

// InsertMetric appends one metric event to the history table.
func (s *Store) InsertMetric(ctx context.Context, m *event.MetricEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO metrics
			(service_name, metric_type, metric_value, unit, timestamp,
			 hostname, environment, version, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ServiceName,
		string(m.MetricType),
		m.MetricValue,
		nullableStr(m.Unit),
		m.Timestamp.Time,
		nullableStr(m.Hostname),
		nullableStr(m.Environment),
		nullableStr(m.Version),
		encodeTags(m.Tags),
	)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// LatestMetrics returns the newest row per metric type for service, ordered
// by metric type.
func (s *Store) LatestMetrics(ctx context.Context, service string) ([]event.MetricEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (metric_type)
		       service_name, metric_type, metric_value, unit, timestamp,
		       hostname, environment, version, tags
		FROM   metrics
		WHERE  service_name = $1
		ORDER  BY metric_type, timestamp DESC`, service)
	if err != nil {
		return nil, fmt.Errorf("latest metrics: %w", err)
	}
	defer rows.Close()
	return collectMetrics(rows)
}

// MetricHistory returns metrics for (service, metricType) with timestamp in
// [from, to), newest first, capped at limit.
func (s *Store) MetricHistory(ctx context.Context, service string, metricType event.MetricType, from, to time.Time, limit int) ([]event.MetricEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT service_name, metric_type, metric_value, unit, timestamp,
		       hostname, environment, version, tags
		FROM   metrics
		WHERE  service_name = $1 AND metric_type = $2
		       AND timestamp >= $3 AND timestamp < $4
		ORDER  BY timestamp DESC
		LIMIT  $5`,
		service, string(metricType), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("metric history: %w", err)
	}
	defer rows.Close()
	return collectMetrics(rows)
}

// AverageOverWindow returns the mean metric value for (service, metricType)
// since the given instant, and the number of samples it covers.
func (s *Store) AverageOverWindow(ctx context.Context, service string, metricType event.MetricType, since time.Time) (float64, int64, error) {
	var avg *float64
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT avg(metric_value), count(*)
		FROM   metrics
		WHERE  service_name = $1 AND metric_type = $2 AND timestamp >= $3`,
		service, string(metricType), since,
	).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("average over window: %w", err)
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, n, nil
}

// PruneMetrics deletes metric rows older than cutoff and returns the number
// removed.
func (s *Store) PruneMetrics(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM metrics WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Alert history ---

// InsertAlert records a triggered alert. Replays of the same alert ID are
// ignored so the consumer can safely reprocess a record.
func (s *Store) InsertAlert(ctx context.Context, a *event.AlertEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts
			(alert_id, service_name, alert_type, severity, status, message,
			 description, threshold_value, current_value, triggered_at,
			 resolved_at, duration_seconds, hostname, environment, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (alert_id) DO NOTHING`,
		a.AlertID,
		a.ServiceName,
		a.AlertType,
		string(a.Severity),
		string(a.Status),
		a.Message,
		nullableStr(a.Description),
		a.ThresholdValue,
		a.CurrentValue,
		a.TriggeredAt.Time,
		nullableTime(a.ResolvedAt),
		nullableInt(a.DurationSeconds),
		nullableStr(a.Hostname),
		nullableStr(a.Environment),
		encodeTags(a.Metadata),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ResolveAlert marks the stored alert row resolved. Resolving an alert that
// was never persisted, or one already resolved, affects zero rows and is not
// an error.
func (s *Store) ResolveAlert(ctx context.Context, a *event.AlertEvent) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE alerts
		SET    status = $2,
		       resolved_at = $3,
		       duration_seconds = $4,
		       current_value = $5
		WHERE  alert_id = $1 AND resolved_at IS NULL`,
		a.AlertID,
		string(a.Status),
		nullableTime(a.ResolvedAt),
		nullableInt(a.DurationSeconds),
		a.CurrentValue,
	)
	if err != nil {
		return fmt.Errorf("resolve alert %s: %w", a.AlertID, err)
	}
	return nil
}

// ActiveAlerts returns unresolved alerts, newest first. An empty service
// matches every service.
func (s *Store) ActiveAlerts(ctx context.Context, service string) ([]event.AlertEvent, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if service != "" {
		rows, err = s.pool.Query(ctx, alertSelect+`
			WHERE  status IN ('ACTIVE', 'ACKNOWLEDGED', 'PENDING') AND service_name = $1
			ORDER  BY triggered_at DESC`, service)
	} else {
		rows, err = s.pool.Query(ctx, alertSelect+`
			WHERE  status IN ('ACTIVE', 'ACKNOWLEDGED', 'PENDING')
			ORDER  BY triggered_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// CountActiveBySeverity returns the number of unresolved alerts per severity.
func (s *Store) CountActiveBySeverity(ctx context.Context) (map[event.Severity]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT severity, count(*)
		FROM   alerts
		WHERE  status IN ('ACTIVE', 'ACKNOWLEDGED', 'PENDING')
		GROUP  BY severity`)
	if err != nil {
		return nil, fmt.Errorf("count active alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.Severity]int64)
	for rows.Next() {
		var sev string
		var n int64
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		counts[event.Severity(sev)] = n
	}
	return counts, rows.Err()
}

// PruneAlerts deletes resolved alert rows older than cutoff and returns the
// number removed.
func (s *Store) PruneAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM alerts
		WHERE  resolved_at IS NOT NULL AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Alert rules ---

// FindApplicableRules returns the enabled rules matching (service, metricType)
// either exactly or through the "*" wildcard. Service-specific rules sort
// before wildcard rules; insertion order breaks ties.
func (s *Store) FindApplicableRules(ctx context.Context, service string, metricType event.MetricType) ([]AlertRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_name, service_name, metric_type, threshold_value,
		       comparison_operator, duration_minutes, severity, enabled, description
		FROM   alert_rules
		WHERE  enabled AND metric_type = $1 AND service_name IN ($2, '*')
		ORDER  BY (service_name = '*') ASC, id ASC`,
		string(metricType), service)
	if err != nil {
		return nil, fmt.Errorf("find applicable rules: %w", err)
	}
	defer rows.Close()

	var rules []AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// ListRules returns every rule, enabled or not, in insertion order.
func (s *Store) ListRules(ctx context.Context) ([]AlertRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_name, service_name, metric_type, threshold_value,
		       comparison_operator, duration_minutes, severity, enabled, description
		FROM   alert_rules
		ORDER  BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// SetRuleEnabled flips a rule on or off.
func (s *Store) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE alert_rules SET enabled = $2, updated_at = now() WHERE id = $1`,
		id, enabled)
	if err != nil {
		return fmt.Errorf("set rule %d enabled: %w", id, err)
	}
	return nil
}

// --- internal helpers ---

const alertSelect = `
		SELECT alert_id, service_name, alert_type, severity, status, message,
		       description, threshold_value, current_value, triggered_at,
		       resolved_at, duration_seconds, hostname, environment, metadata
		FROM   alerts`

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing shared scan
// helpers across single-row and multi-row queries.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*AlertRule, error) {
	var r AlertRule
	var metricType, severity string
	var description *string
	err := s.Scan(
		&r.ID, &r.RuleName, &r.ServiceName,
		&metricType, &r.ThresholdValue, &r.Operator,
		&r.DurationMinutes, &severity, &r.Enabled,
		&description,
	)
	if err != nil {
		return nil, err
	}
	r.MetricType = event.MetricType(metricType)
	r.Severity = event.Severity(severity)
	if description != nil {
		r.Description = *description
	}
	return &r, nil
}

func collectMetrics(rows pgx.Rows) ([]event.MetricEvent, error) {
	var metrics []event.MetricEvent
	for rows.Next() {
		var m event.MetricEvent
		var metricType string
		var unit, hostname, environment, version, tags *string
		var ts time.Time
		err := rows.Scan(
			&m.ServiceName, &metricType, &m.MetricValue,
			&unit, &ts,
			&hostname, &environment, &version, &tags,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.MetricType = event.MetricType(metricType)
		m.Timestamp = event.At(ts)
		m.Unit = deref(unit)
		m.Hostname = deref(hostname)
		m.Environment = deref(environment)
		m.Version = deref(version)
		m.Tags = decodeTags(tags)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func collectAlerts(rows pgx.Rows) ([]event.AlertEvent, error) {
	var alerts []event.AlertEvent
	for rows.Next() {
		var a event.AlertEvent
		var severity, status string
		var description, hostname, environment, metadata *string
		var triggeredAt time.Time
		var resolvedAt *time.Time
		var duration *int64
		err := rows.Scan(
			&a.AlertID, &a.ServiceName, &a.AlertType,
			&severity, &status, &a.Message,
			&description, &a.ThresholdValue, &a.CurrentValue,
			&triggeredAt, &resolvedAt, &duration,
			&hostname, &environment, &metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Severity = event.Severity(severity)
		a.Status = event.AlertStatus(status)
		a.TriggeredAt = event.At(triggeredAt)
		if resolvedAt != nil {
			t := event.At(*resolvedAt)
			a.ResolvedAt = &t
		}
		if duration != nil {
			a.DurationSeconds = *duration
		}
		a.Description = deref(description)
		a.Hostname = deref(hostname)
		a.Environment = deref(environment)
		a.Metadata = decodeTags(metadata)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// encodeTags serializes a tag map to its JSON column form; empty maps are
// stored as NULL.
func encodeTags(tags map[string]string) *string {
	if len(tags) == 0 {
		return nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func decodeTags(col *string) map[string]string {
	if col == nil || *col == "" {
		return nil
	}
	var tags map[string]string
	if err := json.Unmarshal([]byte(*col), &tags); err != nil {
		return nil
	}
	return tags
}

// nullableStr converts an empty string to a nil pointer, which pgx stores as
// SQL NULL.
func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t *event.Time) *time.Time {
	if t == nil {
		return nil
	}
	return &t.Time
}

func nullableInt(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
