// Package metrics exposes prometheus collectors for the triage pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ThreadsProcessed counts threads by final record status and decision action.
	ThreadsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_threads_processed_total",
			Help: "Total number of threads processed by the triage orchestrator",
		},
		[]string{"status", "action"},
	)

	// ClassifyLatency in milliseconds, per backend and outcome.
	ClassifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_classify_latency_ms",
			Help:    "Classification service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~50s
		},
		[]string{"provider", "status"},
	)

	// NormalizeFallbacks counts results replaced by the manual-review default.
	NormalizeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_normalize_fallbacks_total",
			Help: "Responses that fell back to the manual-review label",
		},
		[]string{"reason"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_run_duration_seconds",
			Help:    "Duration of a full triage run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
		[]string{"trigger"},
	)

	PendingMail = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "triage_pending_mail",
			Help: "Unread inbox threads not yet processed",
		},
	)

	ExampleCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_example_cache_lookups_total",
			Help: "Label example cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)
)

// RecordThread increments the processed-thread counter.
func RecordThread(status, action string) {
	ThreadsProcessed.WithLabelValues(status, action).Inc()
}

// RecordClassify observes one classification call.
func RecordClassify(provider, status string, duration time.Duration) {
	ClassifyLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

func RecordFallback(reason string) {
	NormalizeFallbacks.WithLabelValues(reason).Inc()
}

func RecordRun(trigger string, duration time.Duration) {
	RunDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func SetPending(n int) {
	PendingMail.Set(float64(n))
}

func RecordCacheLookup(hit bool) {
	if hit {
		ExampleCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	ExampleCacheLookups.WithLabelValues("miss").Inc()
}
