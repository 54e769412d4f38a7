package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the registration/workflow domain counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	drops           prometheus.Counter
	waitlistJoins   prometheus.Counter
	decisions       *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "course_registrations_total",
		Help: "Course registration attempts by outcome",
	}, []string{"outcome"})

	drops := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "course_drops_total",
		Help: "Total completed course drops",
	})

	waitlistJoins := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_joins_total",
		Help: "Total waitlist joins",
	})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "request_decisions_total",
		Help: "Workflow decisions by action",
	}, []string{"action"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, registrations, drops, waitlistJoins, decisions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		registrations:   registrations,
		drops:           drops,
		waitlistJoins:   waitlistJoins,
		decisions:       decisions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records per-route request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// IncRegistration counts a registration attempt by outcome, e.g. "success",
// "course_full", "schedule_conflict".
func (m *MetricsService) IncRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// IncDrop counts a completed drop.
func (m *MetricsService) IncDrop() {
	if m == nil {
		return
	}
	m.drops.Inc()
}

// IncWaitlistJoin counts a waitlist join.
func (m *MetricsService) IncWaitlistJoin() {
	if m == nil {
		return
	}
	m.waitlistJoins.Inc()
}

// IncDecision counts a workflow decision by action ("approved", "rejected").
func (m *MetricsService) IncDecision(action string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action).Inc()
}
