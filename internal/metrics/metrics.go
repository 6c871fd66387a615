// Package metrics provides Prometheus instrumentation for the Guard analysis
// service. It exposes gauges for queue depth and tracked profiles, counters
// for message outcomes and per-category detections, and histograms for
// pipeline latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth tracks the current number of messages waiting per priority tier.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guard_queue_depth",
		Help: "Current number of queued messages per priority tier",
	}, []string{"priority"})

	// MessagesTotal counts analyzed messages by outcome: "completed", "blocked",
	// "failed", or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_messages_total",
		Help: "Total number of messages by processing outcome",
	}, []string{"outcome"})

	// DetectionsTotal counts abuse detections labeled by category.
	DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_detections_total",
		Help: "Total number of abuse detections by category",
	}, []string{"category"})

	// ProcessingLatency records end-to-end analysis latency in seconds.
	ProcessingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "guard_processing_latency_seconds",
		Help:    "End-to-end message analysis latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// HighRiskAlerts counts alerts raised for content above the high-risk threshold.
	HighRiskAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guard_high_risk_alerts_total",
		Help: "Total number of high-risk content alerts",
	})

	// TrackedProfiles tracks the current number of user behavior profiles in memory.
	TrackedProfiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guard_tracked_profiles",
		Help: "Current number of user behavior profiles held in memory",
	})
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		MessagesTotal,
		DetectionsTotal,
		ProcessingLatency,
		HighRiskAlerts,
		TrackedProfiles,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
