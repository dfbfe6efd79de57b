package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records engine and HTTP metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	reg       *prometheus.Registry
	namespace string
	once      sync.Once

	transitions   *prometheus.CounterVec
	rotated       prometheus.Counter
	rotationRetry prometheus.Counter
	httpDuration  *prometheus.HistogramVec
}

// New creates a collector on its own registry. namespace defaults to
// "choreline".
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "choreline"
	}
	return &Collector{reg: prometheus.NewRegistry(), namespace: namespace}
}

func (c *Collector) ensureRegistered() {
	c.once.Do(func() {
		c.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by name and outcome reason.",
		}, []string{"op", "result"})
		c.rotated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "rotation",
			Name:      "assigned_total",
			Help:      "Assignments created by rotation.",
		})
		c.rotationRetry = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "rotation",
			Name:      "retries_total",
			Help:      "Rotation batches retried after a concurrent assignment.",
		})
		c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method", "route", "status"})

		c.reg.MustRegister(c.transitions, c.rotated, c.rotationRetry, c.httpDuration)
	})
}

// ObserveOperation counts one engine call. result is "ok" or the error reason.
func (c *Collector) ObserveOperation(op, result string) {
	if c == nil {
		return
	}
	c.ensureRegistered()
	c.transitions.WithLabelValues(op, result).Inc()
}

func (c *Collector) AddRotated(n int) {
	if c == nil {
		return
	}
	c.ensureRegistered()
	c.rotated.Add(float64(n))
}

func (c *Collector) IncRotationRetry() {
	if c == nil {
		return
	}
	c.ensureRegistered()
	c.rotationRetry.Inc()
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.ensureRegistered()
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	c.ensureRegistered()
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	c.ensureRegistered()
	return c.reg
}
