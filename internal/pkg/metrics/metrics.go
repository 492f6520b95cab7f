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
		Namespace: "shiftfence",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shiftfence",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Shift ledger metrics
	ClockAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftfence",
		Subsystem: "shift",
		Name:      "clock_attempts_total",
		Help:      "Clock-in and clock-out attempts by outcome",
	}, []string{"action", "result"})

	ShiftHours = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shiftfence",
		Subsystem: "shift",
		Name:      "closed_hours",
		Help:      "Total hours of closed shifts",
		Buckets:   []float64{0.5, 1, 2, 4, 6, 8, 10, 12, 16, 24},
	})

	// Geofence metrics
	GeofenceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftfence",
		Subsystem: "geofence",
		Name:      "events_total",
		Help:      "Geofence events emitted by kind",
	}, []string{"kind"})

	SamplesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shiftfence",
		Subsystem: "geofence",
		Name:      "samples_ingested_total",
		Help:      "Location samples accepted by the geofence tracker",
	})

	SamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftfence",
		Subsystem: "geofence",
		Name:      "samples_dropped_total",
		Help:      "Location samples dropped by reason",
	}, []string{"reason"})

	TrackedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftfence",
		Subsystem: "geofence",
		Name:      "tracked_workers",
		Help:      "Workers with a known geofence state",
	})

	// Realtime metrics
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftfence",
		Subsystem: "realtime",
		Name:      "events_published_total",
		Help:      "Realtime events published by kind and result",
	}, []string{"kind", "result"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftfence",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftfence",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shiftfence",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftfence",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftfence",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shiftfence",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Result labels an outcome for ClockAttempts and EventsPublished.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

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

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics updates database pool gauges from pgx pool stats.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}
