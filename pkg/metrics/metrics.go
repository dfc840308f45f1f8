package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ consume latency (ms). Labelled by exchange, per-user routing keys would explode cardinality.
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"exchange"},
	)

	// Language model call latency (ms)
	AICallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_latency_ms",
			Help:    "Language model call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"flow", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Number of statements slower than the configured threshold",
		},
		[]string{"statement"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Mutations issued through the gateway
	MutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_mutation_total",
			Help: "Total number of document mutations by entity, operation and result",
		},
		[]string{"entity", "op", "result"}, // result: success, failed, rejected
	)

	AdvisoryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_advisory_total",
			Help: "Total number of advisories raised",
		},
		[]string{"kind"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planner_active_sessions",
			Help: "Number of live planner sessions",
		},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events handled by the dispatcher",
		},
		[]string{"result"}, // sent, retry, dead
	)
)

func RecordMQConsumeLatency(exchange string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(exchange).Observe(float64(duration.Milliseconds()))
}

func RecordAICallLatency(flow, status string, duration time.Duration) {
	AICallLatency.WithLabelValues(flow, status).Observe(float64(duration.Milliseconds()))
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow statement. Only the leading keyword is used
// as label so raw SQL never becomes a series.
func IncrementSlowQuery(sql string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(statementKind(sql)).Inc()
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementMutation(entity, op, result string) {
	MutationCount.WithLabelValues(entity, op, result).Inc()
}

func IncrementAdvisory(kind string) {
	AdvisoryCount.WithLabelValues(kind).Inc()
}

func IncrementOutbox(result string) {
	OutboxPublished.WithLabelValues(result).Inc()
}

func statementKind(sql string) string {
	start := 0
	for start < len(sql) && (sql[start] == ' ' || sql[start] == '\n' || sql[start] == '\t') {
		start++
	}
	end := start
	for end < len(sql) && sql[end] != ' ' && sql[end] != '\n' && sql[end] != '\t' {
		end++
	}
	if start == end {
		return "unknown"
	}
	kind := sql[start:end]
	switch kind {
	case "SELECT", "select":
		return "select"
	case "INSERT", "insert":
		return "insert"
	case "UPDATE", "update":
		return "update"
	case "DELETE", "delete":
		return "delete"
	default:
		return "other"
	}
}
