// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmo_jobs_enqueued_total",
		Help: "Total number of jobs enqueued, by job_type",
	}, []string{"job_type"})
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmo_jobs_processed_total",
		Help: "Total number of jobs processed to a terminal outcome, by job_type and outcome",
	}, []string{"job_type", "outcome"})
	JobsDeduplicated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmo_jobs_deduplicated_total",
		Help: "Total number of jobs skipped because their job_id was already seen",
	}, []string{"job_type"})
	JobProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "osmo_job_processing_duration_seconds",
		Help:    "Histogram of job handler durations, by job_type",
		Buckets: prometheus.DefBuckets,
	}, []string{"job_type"})
	QueueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "osmo_queue_length",
		Help: "Current length of a broker queue",
	}, []string{"queue"})

	WorkflowsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "osmo_workflows_active",
		Help: "Number of non-finished workflows, by status",
	}, []string{"status"})
	WorkflowsTerminal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmo_workflows_terminal_total",
		Help: "Total workflows that reached a terminal status",
	}, []string{"status"})

	BackendSessionsConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "osmo_backend_sessions_connected",
		Help: "Number of connected BackendSession listener/worker channels, by backend and channel",
	}, []string{"backend", "channel"})
	BackendHeartbeatAge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "osmo_backend_heartbeat_age_seconds",
		Help: "Seconds since the last heartbeat was received from a backend",
	}, []string{"backend"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "osmo_backend_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open, by backend",
	}, []string{"backend"})
	CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmo_backend_circuit_breaker_trips_total",
		Help: "Count of times a backend's circuit breaker transitioned to Open",
	}, []string{"backend"})
)

func init() {
	prometheus.MustRegister(
		JobsEnqueued, JobsProcessed, JobsDeduplicated, JobProcessingDuration, QueueLength,
		WorkflowsActive, WorkflowsTerminal,
		BackendSessionsConnected, BackendHeartbeatAge,
		CircuitBreakerState, CircuitBreakerTrips,
	)
}
