package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huru_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat backend.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huru_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	fanoutNoticesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huru_fanout_notices_total",
			Help: "Total number of notification records produced by fan-out.",
		},
		[]string{"kind"},
	)
	fanoutFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "huru_fanout_failures_total",
			Help: "Total number of per-recipient notification write failures.",
		},
	)
	sweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "huru_retention_sweep_runs_total",
			Help: "Total number of completed retention sweep runs.",
		},
	)
	sweepDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "huru_retention_sweep_deleted_total",
			Help: "Total number of messages deleted by the retention sweeper.",
		},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "huru_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "huru_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		fanoutNoticesTotal,
		fanoutFailuresTotal,
		sweepRunsTotal,
		sweepDeletedTotal,
		wsActiveConnections,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncFanoutNotice(kind string) {
	fanoutNoticesTotal.WithLabelValues(kind).Inc()
}

func IncFanoutFailure() {
	fanoutFailuresTotal.Inc()
}

func IncSweepRun() {
	sweepRunsTotal.Inc()
}

func AddSweepDeleted(n int) {
	sweepDeletedTotal.Add(float64(n))
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
