// Package metrics exposes Prometheus collectors for job throughput and
// provider latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several runners can coexist in one
// process (tests, embedded use).
type Collector struct {
	registry *prometheus.Registry

	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsRunning   prometheus.Gauge
	providerWait  *prometheus.HistogramVec
	mediaOps      *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelsmith_jobs_submitted_total",
			Help: "Jobs accepted by the runner",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelsmith_jobs_finished_total",
			Help: "Jobs that reached a terminal state",
		}, []string{"kind", "status", "error_kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reelsmith_job_duration_seconds",
			Help:    "Wall time from submit to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
		}, []string{"kind"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reelsmith_jobs_running",
			Help: "Jobs currently held by a worker",
		}),
		providerWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reelsmith_provider_await_seconds",
			Help:    "Time spent between submit and fetched outputs per provider",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"provider", "outcome"}),
		mediaOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reelsmith_media_operations_total",
			Help: "Frame extractions and stitches by outcome",
		}, []string{"operation", "outcome"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.jobsSubmitted,
		c.jobsFinished,
		c.jobDuration,
		c.jobsRunning,
		c.providerWait,
		c.mediaOps,
	)
	return c
}

// Handler serves the text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) JobSubmitted(kind string) {
	if c == nil {
		return
	}
	c.jobsSubmitted.WithLabelValues(kind).Inc()
	c.jobsRunning.Inc()
}

// JobFinished records a terminal state. errorKind is empty for successes.
func (c *Collector) JobFinished(kind, status, errorKind string, seconds float64) {
	if c == nil {
		return
	}
	c.jobsRunning.Dec()
	c.jobsFinished.WithLabelValues(kind, status, errorKind).Inc()
	c.jobDuration.WithLabelValues(kind).Observe(seconds)
}

func (c *Collector) ProviderAwait(provider string, ok bool, seconds float64) {
	if c == nil {
		return
	}
	c.providerWait.WithLabelValues(provider, outcome(ok)).Observe(seconds)
}

func (c *Collector) MediaOperation(operation string, ok bool) {
	if c == nil {
		return
	}
	c.mediaOps.WithLabelValues(operation, outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
