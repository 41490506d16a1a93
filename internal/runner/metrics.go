package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qce",
		Name:      "batch_runs_started_total",
		Help:      "Number of sequential batch runs started.",
	})
	metricItemsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qce",
		Name:      "batch_items_submitted_total",
		Help:      "Number of items submitted to the remote service.",
	})
	metricItemsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qce",
		Name:      "batch_items_failed_total",
		Help:      "Number of submissions recorded as failed.",
	})
	metricInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qce",
		Name:      "batch_submissions_in_flight",
		Help:      "Submissions currently awaiting the remote service.",
	})
	metricSubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qce",
		Name:      "batch_submit_duration_seconds",
		Help:      "Time spent waiting for one submission.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})
)

func recordRunStart() {
	metricRunsStarted.Inc()
}

func recordSubmission(ok bool, seconds float64) {
	metricItemsSubmitted.Inc()
	if !ok {
		metricItemsFailed.Inc()
	}
	metricSubmitDuration.Observe(seconds)
}

func recordInFlight(n int) {
	metricInFlight.Set(float64(n))
}
