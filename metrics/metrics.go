// Package metrics holds the Prometheus collectors for the RFP service.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes
const (
	OutcomeCreated  = "created"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Sweep results
const (
	SweepOK      = "ok"
	SweepError   = "error"
	SweepSkipped = "skipped"
)

// Metrics groups the service collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	submissions   *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
	recordsClosed prometheus.Counter
	closeFailures prometheus.Counter
	sweepDuration prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfp",
			Name:      "submissions_total",
			Help:      "RFP submissions by outcome.",
		}, []string{"outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "reconciler",
			Name:      "sweeps_total",
			Help:      "Status reconciler sweeps by result.",
		}, []string{"result"}),
		recordsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "reconciler",
			Name:      "records_closed_total",
			Help:      "RFPs closed because their deadline passed.",
		}),
		closeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "reconciler",
			Name:      "close_failures_total",
			Help:      "Per-record close attempts that failed.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "reconciler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of reconciler sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rfp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rfp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions,
		m.sweeps,
		m.recordsClosed,
		m.closeFailures,
		m.sweepDuration,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSubmission counts a submission outcome
func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// ObserveSweep records one reconciler sweep
func (m *Metrics) ObserveSweep(result string, closed, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.recordsClosed.Add(float64(closed))
	m.closeFailures.Add(float64(failed))
	if result != SweepSkipped {
		m.sweepDuration.Observe(took.Seconds())
	}
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
