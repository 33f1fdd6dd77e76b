package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Data freshness
	MetricPresenceStaleness = "presence.record_age_seconds"
	MetricLocationLatency   = "realtime.location_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricRoutesRecorded   = "business.routes_recorded"
	MetricRoutesReconciled = "business.routes_reconciled"
)
