package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels operations that produced a usable result.
	OutcomeSuccess = "success"
	// OutcomeError labels operations that exhausted every option.
	OutcomeError = "error"
)

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Name:      "resolutions_total",
			Help:      "Analytical resolutions handled, partitioned by request kind, winning source and outcome.",
		},
		[]string{"kind", "source", "outcome"},
	)

	resolutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "atlas",
			Name:      "resolution_seconds",
			Help:      "End-to-end resolution latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	sourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Name:      "source_failures_total",
			Help:      "Individual source attempt failures, partitioned by source kind.",
		},
		[]string{"source"},
	)

	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Name:      "crisis_scans_total",
			Help:      "Crisis monitor scans, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	activeEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "atlas",
			Name:      "crisis_active_events",
			Help:      "Crisis events currently retained in the monitor window.",
		},
	)

	activeAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "atlas",
			Name:      "crisis_active_alerts",
			Help:      "Unacknowledged alerts currently retained.",
		},
	)

	limiterWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "atlas",
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent waiting on upstream rate limiters.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"upstream"},
	)

	persistenceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "atlas",
			Name:      "persistence_failures_total",
			Help:      "Best-effort persistence writes that failed and were absorbed.",
		},
	)
)

// Register attaches atlas collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		resolutionsTotal,
		resolutionSeconds,
		sourceFailuresTotal,
		scansTotal,
		activeEvents,
		activeAlerts,
		limiterWaitSeconds,
		persistenceFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveResolution records one completed resolution.
func ObserveResolution(kind, source string, duration time.Duration, outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	resolutionsTotal.WithLabelValues(kind, source, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	resolutionSeconds.Observe(duration.Seconds())
}

// ObserveSourceFailure counts a failed attempt against one source.
func ObserveSourceFailure(source string) {
	sourceFailuresTotal.WithLabelValues(source).Inc()
}

// ObserveScan records one monitor scan and the resulting window sizes.
func ObserveScan(outcome string, events, alerts int) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	scansTotal.WithLabelValues(outcome).Inc()
	activeEvents.Set(float64(events))
	activeAlerts.Set(float64(alerts))
}

// ObserveLimiterWait records time spent queued behind a rate limiter.
func ObserveLimiterWait(upstream string, wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	limiterWaitSeconds.WithLabelValues(upstream).Observe(wait.Seconds())
}

// ObservePersistenceFailure counts an absorbed storage error.
func ObservePersistenceFailure() {
	persistenceFailuresTotal.Inc()
}
