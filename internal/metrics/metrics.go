// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movienight_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movienight_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "movienight_http_active_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Voting
	VoteOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movienight_vote_operations_total",
			Help: "Vote mutations by action",
		},
		[]string{"action"}, // "cast", "retract", "block", "unblock"
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movienight_decisions_total",
			Help: "Winner decisions by mode",
		},
		[]string{"mode"}, // "auto", "explicit", "undo"
	)

	InviteLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movienight_invite_pin_lockouts_total",
			Help: "Invite PIN attempts rejected by the lockout window",
		},
	)

	// Integrations
	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movienight_circuit_breaker_open",
			Help: "1 while the service circuit breaker is open",
		},
		[]string{"service"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movienight_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"service", "to"},
	)

	ImageCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movienight_image_cache_requests_total",
			Help: "Image proxy lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// Maintenance
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movienight_maintenance_runs_total",
			Help: "Background maintenance passes by result",
		},
		[]string{"result"},
	)

	NightsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movienight_nights_generated_total",
			Help: "Movie nights created from schedules",
		},
	)
)

// RecordHTTPRequest records one completed request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
		return
	}
	HTTPActiveRequests.Dec()
}

// RecordVote counts a vote mutation.
func RecordVote(action string) {
	VoteOperations.WithLabelValues(action).Inc()
}

// RecordDecision counts a decide or undo.
func RecordDecision(mode string) {
	Decisions.WithLabelValues(mode).Inc()
}

// RecordInviteLockout counts a rejected PIN attempt.
func RecordInviteLockout() {
	InviteLockouts.Inc()
}

// RecordBreakerState matches breaker.StateListener.
func RecordBreakerState(service string, open bool) {
	value, to := 0.0, "closed"
	if open {
		value, to = 1, "open"
	}
	BreakerOpen.WithLabelValues(service).Set(value)
	BreakerTransitions.WithLabelValues(service, to).Inc()
}

// RecordImageCache counts an image proxy lookup.
func RecordImageCache(hit bool, err error) {
	switch {
	case err != nil:
		ImageCacheRequests.WithLabelValues("error").Inc()
	case hit:
		ImageCacheRequests.WithLabelValues("hit").Inc()
	default:
		ImageCacheRequests.WithLabelValues("miss").Inc()
	}
}

// RecordMaintenance counts a maintenance pass and the nights it created.
func RecordMaintenance(generated int, err error) {
	if err != nil {
		MaintenanceRuns.WithLabelValues("error").Inc()
	} else {
		MaintenanceRuns.WithLabelValues("success").Inc()
	}
	if generated > 0 {
		NightsGenerated.Add(float64(generated))
	}
}
