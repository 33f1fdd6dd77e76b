package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "waypulse",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "waypulse",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Tracking metrics
	PositionSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "tracking",
		Name:      "position_samples_total",
		Help:      "Total position fixes accepted by the sampler",
	}, []string{"user"})

	RoutesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "tracking",
		Name:      "routes_saved_total",
		Help:      "Total routes persisted at session end",
	}, []string{"store"})

	RouteSaveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "tracking",
		Name:      "route_save_failures_total",
		Help:      "Total route persistence failures",
	}, []string{"store"})

	// Presence metrics
	PresenceHeartbeats = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "presence",
		Name:      "heartbeats_total",
		Help:      "Total presence heartbeats published",
	})

	LocationPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "presence",
		Name:      "location_publishes_total",
		Help:      "Total location records published",
	}, []string{"trigger"})

	// Directions metrics
	DirectionsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "directions",
		Name:      "requests_total",
		Help:      "Total snap requests against the directions API",
	}, []string{"outcome"})

	DirectionsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "waypulse",
		Subsystem: "directions",
		Name:      "request_duration_seconds",
		Help:      "Duration of directions API calls",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "waypulse",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waypulse",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "waypulse",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "waypulse",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "waypulse",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
