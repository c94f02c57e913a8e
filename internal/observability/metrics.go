package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry and the service counters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	requests          *prometheus.CounterVec
	errors            *prometheus.CounterVec
	complaintsCreated *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	sweepFlags        *prometheus.CounterVec
	sweepFailures     prometheus.Counter
	sweepDuration     prometheus.Histogram
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP error responses by route, method and error code.",
		}, []string{"path", "method", "code"}),
		complaintsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "complaints_created_total",
			Help: "Complaints created, labelled by routing outcome.",
		}, []string{"routed"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "complaint_transitions_total",
			Help: "Status transitions applied.",
		}, []string{"from", "to"}),
		sweepFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_flags_total",
			Help: "Flags flipped by the overdue/escalation sweep.",
		}, []string{"flag"}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweep_failures_total",
			Help: "Complaints the sweep failed to evaluate or update.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Wall time of a full sweep pass.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.errors,
		m.complaintsCreated,
		m.transitions,
		m.sweepFlags,
		m.sweepFailures,
		m.sweepDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) RecordComplaintCreated(routed bool) {
	if m == nil {
		return
	}
	m.complaintsCreated.WithLabelValues(strconv.FormatBool(routed)).Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordSweepFlag counts one flag flip; flag is "overdue" or "escalated".
func (m *Metrics) RecordSweepFlag(flag string) {
	if m == nil {
		return
	}
	m.sweepFlags.WithLabelValues(flag).Inc()
}

func (m *Metrics) RecordSweepFailure() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}

func (m *Metrics) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}
