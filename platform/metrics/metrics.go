// Package metrics provides Prometheus instrumentation for the HTTP layer and the pipeline engine.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	LeadMoves       *prometheus.CounterVec
	StoreRollbacks  prometheus.Counter
	StoreReconciles prometheus.Counter
	StoreLoads      *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec

	// Automation metrics
	AutomationActions  *prometheus.CounterVec
	AutomationSweeps   prometheus.Counter
	AutomationDuration prometheus.Histogram
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		LeadMoves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_lead_moves_total",
				Help: "Lead status transitions by target status and outcome",
			},
			[]string{"to", "outcome"}, // outcome: ok, failed
		),
		StoreRollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_store_rollbacks_total",
			Help: "Optimistic cache writes reverted after a persistence failure",
		}),
		StoreReconciles: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_store_reconciles_total",
			Help: "Delayed cache reconciliations executed",
		}),
		StoreLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_store_loads_total",
				Help: "Full lead loads by reason",
			},
			[]string{"reason"}, // cold, stale, refresh, reconcile
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_reads_total",
				Help: "Lead store reads by freshness",
			},
			[]string{"freshness"}, // fresh, stale, miss
		),

		AutomationActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_actions_total",
				Help: "Automation actions by type and outcome",
			},
			[]string{"action", "outcome"},
		),
		AutomationSweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: "automation_sweeps_total",
			Help: "Completed automation evaluation runs",
		}),
		AutomationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "automation_sweep_duration_seconds",
			Help:    "Duration of automation evaluation runs",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// RecordLeadMove counts a status transition.
func (m *Metrics) RecordLeadMove(to string, ok bool) {
	if m == nil {
		return
	}
	m.LeadMoves.WithLabelValues(to, outcome(ok)).Inc()
}

// RecordRollback counts a reverted optimistic write.
func (m *Metrics) RecordRollback() {
	if m == nil {
		return
	}
	m.StoreRollbacks.Inc()
}

// RecordReconcile counts a delayed reconciliation.
func (m *Metrics) RecordReconcile() {
	if m == nil {
		return
	}
	m.StoreReconciles.Inc()
}

// RecordLoad counts a full lead load.
func (m *Metrics) RecordLoad(reason string) {
	if m == nil {
		return
	}
	m.StoreLoads.WithLabelValues(reason).Inc()
}

// RecordRead counts a store read by snapshot freshness.
func (m *Metrics) RecordRead(freshness string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(freshness).Inc()
}

// RecordAction counts an executed automation action.
func (m *Metrics) RecordAction(action string, ok bool) {
	if m == nil {
		return
	}
	m.AutomationActions.WithLabelValues(action, outcome(ok)).Inc()
}

// RecordSweep observes a finished automation run.
func (m *Metrics) RecordSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.AutomationSweeps.Inc()
	m.AutomationDuration.Observe(duration.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
