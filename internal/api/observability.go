package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maum-on/haruon-hub/internal/analysis"
	"github.com/maum-on/haruon-hub/internal/breaker"
	"github.com/maum-on/haruon-hub/internal/llm"
	"github.com/maum-on/haruon-hub/internal/relay"
	"github.com/maum-on/haruon-hub/internal/report"
)

var (
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "maum",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "maum", Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "maum", Name: "analysis_total", Help: "Diary analysis runs by outcome"},
		[]string{"outcome"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "maum", Name: "llm_requests_total", Help: "LLM backend attempts by backend and outcome"},
		[]string{"backend", "outcome"},
	)
	relayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "maum", Name: "relay_total", Help: "Satellite relay deliveries by outcome"},
		[]string{"outcome"},
	)
	reportRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "maum", Name: "report_runs_total", Help: "Report generation runs by mode and outcome"},
		[]string{"mode", "outcome"},
	)
	breakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "maum", Name: "circuit_breaker_open", Help: "Circuit breaker state: 1=open, 0=closed"},
		[]string{"breaker"},
	)
	queuePending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "maum", Name: "queue_pending", Help: "Pending messages in queue consumer groups"},
		[]string{"stream"},
	)
	dlqInsertTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "maum", Name: "dlq_insert_total", Help: "Total DLQ insertions"},
		[]string{"stream", "reason"},
	)
	dlqDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "maum", Name: "dlq_depth", Help: "Current DLQ depth"},
		[]string{"stream"},
	)
)

func init() {
	prometheus.MustRegister(
		reqDuration, reqTotal, analysisTotal, llmRequestsTotal,
		relayTotal, reportRunsTotal, breakerOpen, queuePending,
		dlqInsertTotal, dlqDepth,
	)

	breaker.StateHook = func(name string, open bool) {
		v := 0.0
		if open {
			v = 1.0
		}
		breakerOpen.WithLabelValues(name).Set(v)
	}
	analysis.ObserveOutcome = func(outcome string) {
		analysisTotal.WithLabelValues(outcome).Inc()
	}
	llm.ObserveRequest = func(backend, outcome string) {
		llmRequestsTotal.WithLabelValues(backend, outcome).Inc()
	}
	relay.ObserveDelivery = func(outcome string) {
		relayTotal.WithLabelValues(outcome).Inc()
	}
	report.ObserveRun = func(mode, outcome string) {
		reportRunsTotal.WithLabelValues(mode, outcome).Inc()
	}
}

// MetricsMiddleware records request duration and counts per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		reqDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		reqTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// SetQueuePending updates the pending gauge for a stream.
func SetQueuePending(stream string, n int64) {
	queuePending.WithLabelValues(stream).Set(float64(n))
}

// RecordDLQInsert counts a dead-lettered message.
func RecordDLQInsert(stream, reason string) {
	dlqInsertTotal.WithLabelValues(stream, reason).Inc()
}

// SetDLQDepth updates the DLQ depth gauge for a stream.
func SetDLQDepth(stream string, n int64) {
	dlqDepth.WithLabelValues(stream).Set(float64(n))
}
