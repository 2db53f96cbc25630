// Package metrics defines the Prometheus instrumentation for the
// autoscaler: queue depth, desired capacity, scale actions, cooldown
// gate hits, and control-plane API health.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	// Namespace is the metrics namespace for the autoscaler.
	Namespace = "runner_autoscaler"
)

var (
	// QueuedJobs tracks the last observed queued-job count.
	QueuedJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "queued_jobs",
		Help:      "Queued job count observed on the last reconcile tick",
	})

	// DesiredCapacity tracks the last desired capacity requested from the cloud scaler.
	DesiredCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "desired_capacity",
		Help:      "Desired scale set capacity requested on the last mutation",
	})

	// RunnerCount tracks the number of runners observed per status.
	RunnerCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "runner_count",
		Help:      "Number of runners observed on the last reconcile tick, by status",
	}, []string{"status"})

	// ReconcileDuration tracks the time taken by a full Reconcile() call.
	ReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Time taken by a full reconciliation tick",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
	})

	// ReconcileTotal tracks reconciliation outcomes.
	ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "reconcile_total",
		Help:      "Total number of reconciliation ticks by result",
	}, []string{"result"})

	// ReconcileErrors tracks reconciliation failures by taxonomy entry.
	ReconcileErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "reconcile_errors_total",
		Help:      "Total number of reconciliation failures by error type",
	}, []string{"error_type"})

	// ScaleActionsTotal tracks scale-out/scale-in/terminate actions taken.
	ScaleActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "scale_actions_total",
		Help:      "Total number of scale actions taken, by action and result",
	}, []string{"action", "result"})

	// RunnersTransitioned tracks runner lifecycle transitions.
	RunnersTransitioned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "runners_transitioned_total",
		Help:      "Total number of runner status transitions",
	}, []string{"from_status", "to_status"})

	// CooldownGateHits tracks how often an action was suppressed by cooldown.
	CooldownGateHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "cooldown_gate_hits_total",
		Help:      "Total number of times an action was suppressed by its cooldown",
	}, []string{"action"})

	// ControlPlaneRequests tracks control-plane API requests.
	ControlPlaneRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_requests_total",
		Help:      "Total number of control-plane API requests",
	}, []string{"method", "status"})

	// ControlPlaneRequestDuration tracks control-plane API request latency.
	ControlPlaneRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "control_plane_request_duration_seconds",
		Help:      "Duration of control-plane API requests",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
	}, []string{"method"})

	// ControlPlaneErrors tracks control-plane API errors by classification.
	ControlPlaneErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_errors_total",
		Help:      "Total number of control-plane API errors by type",
	}, []string{"method", "error_type"})

	// ControlPlaneRateLimitedTotal tracks requests delayed by the client rate limiter.
	ControlPlaneRateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_rate_limited_total",
		Help:      "Total number of control-plane requests delayed by the rate limiter",
	}, []string{"method"})

	// ControlPlaneRateLimitWaitDuration tracks time spent waiting on the rate limiter.
	ControlPlaneRateLimitWaitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "control_plane_rate_limit_wait_duration_seconds",
		Help:      "Time spent waiting for the control-plane client rate limiter",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	}, []string{"method"})

	// CircuitBreakerState tracks which circuit breaker state is currently active (1) or not (0).
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "control_plane_circuit_breaker_state",
		Help:      "Control-plane client circuit breaker state (1 = current state)",
	}, []string{"state"})

	// CircuitBreakerStateChanges tracks circuit breaker transitions.
	CircuitBreakerStateChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_circuit_breaker_state_changes_total",
		Help:      "Total number of circuit breaker state transitions",
	}, []string{"from", "to"})

	// CircuitBreakerOpenRejections tracks calls rejected while the circuit is open.
	CircuitBreakerOpenRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_circuit_breaker_open_rejections_total",
		Help:      "Total number of calls rejected because the circuit breaker was open",
	})

	// CircuitBreakerHalfOpenAttempts tracks half-open probe attempts.
	CircuitBreakerHalfOpenAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_circuit_breaker_half_open_attempts_total",
		Help:      "Total number of half-open probe requests attempted",
	})

	// CircuitBreakerHalfOpenSuccesses tracks successful half-open probes.
	CircuitBreakerHalfOpenSuccesses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_circuit_breaker_half_open_successes_total",
		Help:      "Total number of successful half-open probe requests",
	})

	// CircuitBreakerHalfOpenFailures tracks failed half-open probes.
	CircuitBreakerHalfOpenFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_circuit_breaker_half_open_failures_total",
		Help:      "Total number of failed half-open probe requests",
	})

	// CircuitBreakerHalfOpenRejections tracks probes rejected for exceeding concurrency.
	CircuitBreakerHalfOpenRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_circuit_breaker_half_open_rejections_total",
		Help:      "Total number of half-open requests rejected for exceeding the concurrency cap",
	})

	// RetryAttempts tracks retry attempts made by the control-plane client.
	RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "control_plane_retry_attempts_total",
		Help:      "Total number of retry attempts made against the control plane",
	}, []string{"method"})

	// AuditEventsTotal tracks audit events emitted, by type/category/severity.
	AuditEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "audit_events_total",
		Help:      "Total number of audit events emitted, by type, category, and severity",
	}, []string{"event_type", "category", "severity"})
)

// Registry is the autoscaler's own Prometheus registry, served over
// /metrics by promhttp rather than via the controller-runtime manager
// this process does not run.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		QueuedJobs,
		DesiredCapacity,
		RunnerCount,
		ReconcileDuration,
		ReconcileTotal,
		ReconcileErrors,
		ScaleActionsTotal,
		RunnersTransitioned,
		CooldownGateHits,
		ControlPlaneRequests,
		ControlPlaneRequestDuration,
		ControlPlaneErrors,
		ControlPlaneRateLimitedTotal,
		ControlPlaneRateLimitWaitDuration,
		CircuitBreakerState,
		CircuitBreakerStateChanges,
		CircuitBreakerOpenRejections,
		CircuitBreakerHalfOpenAttempts,
		CircuitBreakerHalfOpenSuccesses,
		CircuitBreakerHalfOpenFailures,
		CircuitBreakerHalfOpenRejections,
		RetryAttempts,
		AuditEventsTotal,
	)
}
