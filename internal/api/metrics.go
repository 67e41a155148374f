package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and graduation collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	graduations *prometheus.CounterVec
	recordFails prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graduation",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "graduation",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	graduations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graduation",
		Name:      "attempts_total",
		Help:      "Graduation attempts by result kind.",
	}, []string{"result"})
	recordFails := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "graduation",
		Name:      "record_failures_total",
		Help:      "Committed graduations whose record could not be written.",
	})
	registry.MustRegister(requests, durations, graduations, recordFails)
	return &Metrics{
		registry:    registry,
		requests:    requests,
		durations:   durations,
		graduations: graduations,
		recordFails: recordFails,
	}
}

// Middleware records request counts and latencies by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := routePattern(r)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveGraduation counts one attempt; result is "success" or an error kind.
func (m *Metrics) ObserveGraduation(result string) {
	m.graduations.WithLabelValues(result).Inc()
}

// ObserveRecordFailure counts a graduation missing from the record sinks.
func (m *Metrics) ObserveRecordFailure() {
	m.recordFails.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
