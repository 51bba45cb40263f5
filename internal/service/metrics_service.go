package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates the Prometheus instrumentation this API emits.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	seedJobs        *prometheus.CounterVec
	queueDepth      prometheus.GaugeFunc
}

// NewMetricsService registers the collectors. depth reports the seeding
// queue's backlog; pass nil when the queue is disabled.
func NewMetricsService(depth func() float64) *MetricsService {
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
		Name: "registration_submissions_total",
		Help: "Registration submissions by outcome code",
	}, []string{"outcome"})

	seedJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finance_seed_jobs_total",
		Help: "Financial seeding jobs by outcome",
	}, []string{"outcome"})

	registry.MustRegister(requestDuration, requestTotal, registrations, seedJobs)

	svc := &MetricsService{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		registrations:   registrations,
		seedJobs:        seedJobs,
	}

	if depth != nil {
		svc.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "finance_seed_queue_depth",
			Help: "Jobs waiting in the financial seeding queue",
		}, depth)
		registry.MustRegister(svc.queueDepth)
	}

	svc.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return svc
}

// Handler exposes the scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one request observation.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveRegistration records a submission outcome code.
func (s *MetricsService) ObserveRegistration(outcome string) {
	s.registrations.WithLabelValues(outcome).Inc()
}

// ObserveSeedJob records a seeding job outcome.
func (s *MetricsService) ObserveSeedJob(outcome string) {
	s.seedJobs.WithLabelValues(outcome).Inc()
}
