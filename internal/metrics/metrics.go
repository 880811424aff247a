// Package metrics exposes Prometheus collectors for fetches and runs.
package metrics

import (
	"net/http"
	"time"

	"eve-arbitrage/internal/market"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arbitrage"

// Collector holds every metric on its own registry.
type Collector struct {
	registry *prometheus.Registry

	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec
	outcomesTotal *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	routesCurrent prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

var _ market.Recorder = (*Collector)(nil)

// New creates and registers all collectors. Process and Go runtime
// collectors are included.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "fetches_total",
				Help:      "Order book fetch attempts by result",
			},
			[]string{"result"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "fetch_duration_seconds",
				Help:      "Order book fetch attempt duration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"result"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "retries_total",
				Help:      "Scheduled fetch retries by error kind",
			},
			[]string{"kind"},
		),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregator",
				Name:      "outcomes_total",
				Help:      "Final per-pair outcomes by status",
			},
			[]string{"status"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Pipeline runs by result",
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end run duration",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		routesCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "routes_published",
			Help:      "Routes in the latest published batch",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last published batch",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.fetchesTotal,
		c.fetchDuration,
		c.retriesTotal,
		c.outcomesTotal,
		c.runsTotal,
		c.runDuration,
		c.routesCurrent,
		c.lastSuccess,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveFetch(result string, d time.Duration) {
	c.fetchesTotal.WithLabelValues(result).Inc()
	c.fetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (c *Collector) IncRetry(kind string) {
	c.retriesTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveOutcome(status string) {
	c.outcomesTotal.WithLabelValues(status).Inc()
}

// ObserveRun records a finished run. result is "published", "failed" or "cancelled".
func (c *Collector) ObserveRun(result string, d time.Duration, routes int, at time.Time) {
	c.runsTotal.WithLabelValues(result).Inc()
	c.runDuration.Observe(d.Seconds())
	if result == "published" {
		c.routesCurrent.Set(float64(routes))
		c.lastSuccess.Set(float64(at.Unix()))
	}
}
