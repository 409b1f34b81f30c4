package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	buildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "releasectl",
			Subsystem: "build",
			Name:      "tasks_total",
			Help:      "Build tasks by component and terminal state.",
		},
		[]string{"component", "state"},
	)
	buildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "releasectl",
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Build-and-push duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"component"},
	)
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "releasectl",
			Subsystem: "reconcile",
			Name:      "applies_total",
			Help:      "Reconciliation applies by environment and outcome.",
		},
		[]string{"environment", "outcome"},
	)
	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "releasectl",
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Reconciliation apply duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"environment", "outcome"},
	)
	probeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "releasectl",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Probe terminal outcomes.",
		},
		[]string{"probe", "outcome"},
	)
	probeAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "releasectl",
			Subsystem: "probe",
			Name:      "attempts",
			Help:      "Attempts used per probe resolution.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		},
		[]string{"probe"},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "releasectl",
			Subsystem: "run",
			Name:      "total",
			Help:      "Release runs by action and verdict.",
		},
		[]string{"action", "verdict"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			buildsTotal, buildDuration,
			reconcileTotal, reconcileDuration,
			probeResults, probeAttempts,
			runsTotal,
		)
	})
}

func RecordBuild(component, state string, duration time.Duration) {
	RegisterMetrics()
	buildsTotal.WithLabelValues(component, state).Inc()
	buildDuration.WithLabelValues(component).Observe(duration.Seconds())
}

func RecordReconcile(environment, outcome string, duration time.Duration) {
	RegisterMetrics()
	reconcileTotal.WithLabelValues(environment, outcome).Inc()
	reconcileDuration.WithLabelValues(environment, outcome).Observe(duration.Seconds())
}

func RecordProbe(probe, outcome string, attempts int) {
	RegisterMetrics()
	probeResults.WithLabelValues(probe, outcome).Inc()
	probeAttempts.WithLabelValues(probe).Observe(float64(attempts))
}

func RecordRun(action, verdict string) {
	RegisterMetrics()
	runsTotal.WithLabelValues(action, verdict).Inc()
}
