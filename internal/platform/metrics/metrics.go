package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics counts lifecycle worker activity.
type WorkerMetrics struct {
	PaymentsProcessed prometheus.Counter
	PollErrors        prometheus.Counter
	IdlePolls         prometheus.Counter
}

// NewWorkerMetrics registers the worker counters on reg.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	factory := promauto.With(reg)
	return &WorkerMetrics{
		PaymentsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ilpay_worker_payments_processed_total",
			Help: "Payments claimed and processed by lifecycle workers.",
		}),
		PollErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ilpay_worker_poll_errors_total",
			Help: "Worker poll cycles that failed before committing a transition.",
		}),
		IdlePolls: factory.NewCounter(prometheus.CounterOpts{
			Name: "ilpay_worker_idle_polls_total",
			Help: "Worker poll cycles that found no claimable payment.",
		}),
	}
}

// HTTPMetrics observes the HTTP surface.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP counters on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ilpay_http_requests_total",
			Help: "HTTP requests served, by method and status.",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ilpay_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}
