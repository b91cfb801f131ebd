package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the dispatch core.
type Metrics struct {
	submissions   *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	budgetDenials *prometheus.CounterVec
	retries       *prometheus.CounterVec
	evictions     *prometheus.CounterVec

	queueDepth *prometheus.GaugeVec
	inFlight   *prometheus.GaugeVec

	queueWait    *prometheus.HistogramVec
	execDuration *prometheus.HistogramVec
}

// NewMetrics creates the dispatch collectors registered against reg. A nil
// reg registers against a private registry, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callisto_dispatch_submissions_total",
				Help: "Total number of requests submitted per tier",
			},
			[]string{"tier"},
		),

		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callisto_dispatch_outcomes_total",
				Help: "Terminal outcomes per tier and outcome class",
			},
			[]string{"tier", "outcome"},
		),

		budgetDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callisto_dispatch_budget_denials_total",
				Help: "Admission denials by budget scope (tenant or document)",
			},
			[]string{"tier", "scope"},
		),

		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callisto_dispatch_retries_total",
				Help: "Rate-limit retries scheduled per tier",
			},
			[]string{"tier"},
		),

		evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callisto_dispatch_queue_evictions_total",
				Help: "Items evicted after exceeding the queue timeout",
			},
			[]string{"tier"},
		),

		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callisto_dispatch_queue_depth",
				Help: "Current number of queued requests per tier",
			},
			[]string{"tier"},
		),

		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callisto_dispatch_in_flight",
				Help: "Current number of executing calls per tier",
			},
			[]string{"tier"},
		),

		queueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callisto_dispatch_queue_wait_seconds",
				Help:    "Time requests spent queued before admission",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"tier"},
		),

		execDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callisto_dispatch_execution_seconds",
				Help:    "Duration of tier calls",
				Buckets: prometheus.ExponentialBuckets(0.01, 3, 10),
			},
			[]string{"tier"},
		),
	}
}
