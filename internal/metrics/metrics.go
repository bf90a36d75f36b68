// Package metrics provides Prometheus instrumentation for the ChequeMate
// platform services. It exposes counters for moderation outcomes and upstream
// failures, histograms for request and refresh latency, and gauges for the
// matchmaking roster.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ModerationRequests counts moderation checks by outcome:
	// "flagged", "clean", "rejected" (400), or "throttled" (429).
	ModerationRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chequemate_moderation_requests_total",
		Help: "Total number of moderation requests processed",
	}, []string{"outcome"})

	// UpstreamErrors counts degraded upstream calls by service:
	// "scoring" or "rewrite".
	UpstreamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chequemate_upstream_errors_total",
		Help: "Total number of degraded upstream service calls",
	}, []string{"service"})

	// ModerationLatency records end-to-end moderation request latency in
	// seconds, including upstream calls.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chequemate_moderation_latency_seconds",
		Help:    "Moderation request processing latency in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// FeatureRefreshDuration records how long one full roster feature
	// refresh takes in seconds.
	FeatureRefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chequemate_feature_refresh_duration_seconds",
		Help:    "Duration of a full player feature refresh in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	// RosterSize tracks the number of players with stored features.
	RosterSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chequemate_roster_size",
		Help: "Current number of players with stored matchmaking features",
	})

	// Matches counts matchmaking decisions by result: "matched" or
	// "unmatched".
	Matches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chequemate_matches_total",
		Help: "Total number of matchmaking decisions",
	}, []string{"result"})

	// Escalations counts users whose flagged-message count crossed the
	// review threshold within the escalation window.
	Escalations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chequemate_escalations_total",
		Help: "Total number of users escalated for moderator review",
	})
)

func init() {
	prometheus.MustRegister(
		ModerationRequests,
		UpstreamErrors,
		ModerationLatency,
		FeatureRefreshDuration,
		RosterSize,
		Matches,
		Escalations,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
