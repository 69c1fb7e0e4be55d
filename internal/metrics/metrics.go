// Package metrics exposes Prometheus instrumentation for the control plane.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP surface
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneshield_http_requests_total",
			Help: "Total HTTP requests by method, route pattern, and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oneshield_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Fleet lifecycle
	EnrollmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneshield_enrollments_total",
			Help: "Total enrollment attempts by flow and outcome",
		},
		[]string{"flow", "outcome"}, // flow: personal|org_token|legacy; outcome: created|rotated|refused|quota
	)

	HeartbeatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oneshield_heartbeats_total",
			Help: "Total heartbeats accepted from agents",
		},
	)

	EndpointsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oneshield_endpoints",
			Help: "Current endpoint count by liveness status",
		},
		[]string{"status"},
	)

	// Telemetry ingest
	IncidentsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneshield_incidents_ingested_total",
			Help: "Total incidents accepted through sync by severity",
		},
		[]string{"severity"},
	)

	CommandsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneshield_commands_delivered_total",
			Help: "Total commands handed to agents in heartbeat responses by kind",
		},
		[]string{"kind"},
	)

	// Security
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oneshield_auth_failures_total",
			Help: "Total authentication failures by scheme",
		},
		[]string{"scheme"}, // jwt, agent_token, agent_secret
	)

	StaleEndpointsMarkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oneshield_stale_endpoints_marked_total",
			Help: "Total endpoints flipped to offline by the liveness sweeper",
		},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordEnrollment records an enrollment attempt outcome.
func RecordEnrollment(flow, outcome string) {
	EnrollmentsTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordHeartbeat records an accepted heartbeat.
func RecordHeartbeat() {
	HeartbeatsTotal.Inc()
}

// RecordIncidentIngested records one incident accepted through sync.
func RecordIncidentIngested(severity string) {
	IncidentsIngestedTotal.WithLabelValues(severity).Inc()
}

// RecordCommandDelivered records a command handed to an agent.
func RecordCommandDelivered(kind string) {
	CommandsDeliveredTotal.WithLabelValues(kind).Inc()
}

// RecordAuthFailure records a rejected credential.
func RecordAuthFailure(scheme string) {
	AuthFailuresTotal.WithLabelValues(scheme).Inc()
}

// UpdateEndpointCounts refreshes the liveness gauges (called by the
// sweeper, so the gauge lags by at most one sweep interval).
func UpdateEndpointCounts(total, online int) {
	EndpointsByStatus.WithLabelValues("online").Set(float64(online))
	EndpointsByStatus.WithLabelValues("offline").Set(float64(total - online))
}

// RecordStaleMarked counts endpoints the sweeper flipped offline.
func RecordStaleMarked(n int64) {
	StaleEndpointsMarkedTotal.Add(float64(n))
}
