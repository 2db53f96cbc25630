package metrics

import "time"

// RecordReconcile records the duration and result of a full tick.
func RecordReconcile(result string, duration time.Duration) {
	ReconcileDuration.Observe(duration.Seconds())
	ReconcileTotal.WithLabelValues(result).Inc()
}

// RecordReconcileError records a reconciliation failure by taxonomy entry.
func RecordReconcileError(errorType string) {
	ReconcileErrors.WithLabelValues(errorType).Inc()
}

// RecordScaleAction records a scale-out/scale-in/terminate action outcome.
func RecordScaleAction(action, result string) {
	ScaleActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordRunnerTransition records a runner status transition.
func RecordRunnerTransition(fromStatus, toStatus string) {
	RunnersTransitioned.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordCooldownGateHit records an action suppressed by its cooldown.
func RecordCooldownGateHit(action string) {
	CooldownGateHits.WithLabelValues(action).Inc()
}

// RecordControlPlaneRequest records a completed control-plane API call.
func RecordControlPlaneRequest(method, status string, duration time.Duration) {
	ControlPlaneRequests.WithLabelValues(method, status).Inc()
	ControlPlaneRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordControlPlaneError records a control-plane API error by classification.
func RecordControlPlaneError(method, errorType string) {
	ControlPlaneErrors.WithLabelValues(method, errorType).Inc()
}

// RecordRetryAttempt records one retry attempt against the control plane.
func RecordRetryAttempt(method string) {
	RetryAttempts.WithLabelValues(method).Inc()
}
