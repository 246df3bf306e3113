package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector manages all metrics for the reconciler.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Audit metrics
	AuditedPosts  *prometheus.CounterVec
	AuditBatches  prometheus.Counter
	AuditFailures *prometheus.CounterVec
	AuditDuration prometheus.Histogram

	// Repair metrics
	RepairsTotal *prometheus.CounterVec
	DrainSteps   prometheus.Counter
}

// NewCollector creates a metrics collector with its own registry.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}

	c.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	c.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	c.AuditedPosts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audited_posts_total",
		Help:      "Total number of audited posts by result",
	}, []string{"result"})

	c.AuditBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_batches_total",
		Help:      "Total number of bulk audit batches submitted",
	})

	c.AuditFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_failures_total",
		Help:      "Total number of audit failures by reason",
	}, []string{"reason"})

	c.AuditDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "audit_run_duration_seconds",
		Help:      "Duration of full audit runs in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	c.RepairsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "repairs_total",
		Help:      "Total number of repair runs by outcome",
	}, []string{"outcome"})

	c.DrainSteps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drain_steps_total",
		Help:      "Total number of replication drain steps executed",
	})

	c.registry.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.AuditedPosts,
		c.AuditBatches,
		c.AuditFailures,
		c.AuditDuration,
		c.RepairsTotal,
		c.DrainSteps,
	)

	return c
}

// Handler returns the HTTP handler serving the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(method, path string, status int, duration time.Duration) {
	c.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
