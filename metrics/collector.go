// Package metrics exports engine and API activity as prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/retriever/models"
)

// GateStatser reports Session Gate occupancy. engine.Gate implements it.
type GateStatser interface {
	Stats() models.GateStats
}

// Collector records retrieval metrics. It implements engine.Observer.
type Collector struct {
	registry *prometheus.Registry

	// ── Session Gate ─────────────────────────────────────────────────
	gateWait    prometheus.Histogram
	sessionHold prometheus.Histogram
	retirements prometheus.Counter

	// ── Controller / runner ──────────────────────────────────────────
	attemptsTotal *prometheus.CounterVec
	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec

	// ── HTTP ─────────────────────────────────────────────────────────
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector on its own registry, which also
// carries the Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		gateWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_seconds",
			Help:      "Time tasks spent queued at the session gate",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		sessionHold: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_hold_seconds",
			Help:      "Time a task held the browser session",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		retirements: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_retirements_total",
			Help:      "Browser sessions closed after failing health checks",
		}),

		attemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Extractor chain attempts by outcome",
		}, []string{"kind", "outcome", "strategy"}),
		tasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Finished tasks by terminal status",
		}, []string{"kind", "status", "code"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task duration including gate waiting",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"}),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// WatchGate exports the gate's live occupancy as gauges.
func (c *Collector) WatchGate(namespace string, g GateStatser) {
	f := promauto.With(c.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gate_holding",
		Help:      "Tasks currently holding a browser session",
	}, func() float64 { return float64(g.Stats().Holding) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gate_waiting",
		Help:      "Tasks queued at the session gate",
	}, func() float64 { return float64(g.Stats().Waiting) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gate_capacity",
		Help:      "Maximum concurrent session holders",
	}, func() float64 { return float64(g.Stats().Capacity) })
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) SessionAcquired(_ string, _ time.Time, waited time.Duration) {
	c.gateWait.Observe(waited.Seconds())
}

func (c *Collector) SessionReleased(_ string, _ time.Time, held time.Duration, retired bool) {
	c.sessionHold.Observe(held.Seconds())
	if retired {
		c.retirements.Inc()
	}
}

func (c *Collector) AttemptFinished(kind models.TaskKind, _ int, out models.Outcome) {
	strategy := ""
	switch {
	case out.Result != nil:
		strategy = out.Result.Strategy
	case out.Reason != nil:
		strategy = out.Reason.Strategy
	}
	c.attemptsTotal.WithLabelValues(string(kind), out.Kind.String(), strategy).Inc()
}

func (c *Collector) TaskFinished(kind models.TaskKind, st models.TaskStatus) {
	code := ""
	if st.Error != nil {
		code = st.Error.Code
	}
	c.tasksTotal.WithLabelValues(string(kind), st.Status, code).Inc()
	c.taskDuration.WithLabelValues(string(kind)).Observe(float64(st.DurationMs) / 1000)
}

// RecordHTTPRequest records one API request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
