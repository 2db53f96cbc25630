package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stackguardian/runner-autoscaler/internal/log"
	"github.com/stackguardian/runner-autoscaler/internal/metrics"
)

// Event is a single structured audit log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"eventType"`
	Category  EventCategory          `json:"category"`
	Severity  EventSeverity          `json:"severity"`
	RequestID string                 `json:"requestId,omitempty"`
	Resource  *Resource              `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Outcome   string                 `json:"outcome,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration,omitempty"`
}

// Resource identifies the runner or scale set an event concerns.
type Resource struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Logger records audit events to a structured logger and Prometheus.
type Logger struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	enabled bool
}

// Config configures a Logger.
type Config struct {
	Enabled bool
	Logger  *zap.Logger
}

// New builds an audit Logger. A nil config yields an enabled logger
// backed by a no-op zap.Logger.
func New(config *Config) *Logger {
	if config == nil {
		config = &Config{Enabled: true, Logger: zap.NewNop()}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("audit"), enabled: config.Enabled}
}

// Log records a single audit event, filling in defaults for
// Timestamp, Category, Severity, and RequestID where unset.
func (a *Logger) Log(ctx context.Context, event *Event) {
	a.mu.RLock()
	enabled := a.enabled
	a.mu.RUnlock()
	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = Category(event.EventType)
	}
	if event.Severity == "" {
		event.Severity = Severity(event.EventType)
	}
	if event.RequestID == "" {
		event.RequestID = log.RequestID(ctx)
	}

	fields := a.buildFields(event)
	switch event.Severity {
	case SeverityCritical, SeverityError:
		a.logger.Error(event.Message, fields...)
	case SeverityWarning:
		a.logger.Warn(event.Message, fields...)
	default:
		a.logger.Info(event.Message, fields...)
	}

	metrics.AuditEventsTotal.WithLabelValues(
		string(event.EventType),
		string(event.Category),
		string(event.Severity),
	).Inc()
}

func (a *Logger) buildFields(event *Event) []zapcore.Field {
	fields := []zapcore.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("eventType", string(event.EventType)),
		zap.String("category", string(event.Category)),
		zap.String("severity", string(event.Severity)),
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("requestId", event.RequestID))
	}
	if event.Outcome != "" {
		fields = append(fields, zap.String("outcome", event.Outcome))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if event.Resource != nil {
		fields = append(fields, zap.String("resourceKind", event.Resource.Kind), zap.String("resourceName", event.Resource.Name))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}
	return fields
}

// Enable turns audit logging on.
func (a *Logger) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
}

// Disable turns audit logging off.
func (a *Logger) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = false
}

// LogRunnerActivated logs the reactivation of a previously drained runner.
func (a *Logger) LogRunnerActivated(ctx context.Context, runnerID, computerName string) {
	a.Log(ctx, &Event{
		EventType: EventRunnerActivated,
		Message:   "runner reactivated",
		Outcome:   "success",
		Resource:  &Resource{Kind: "runner", Name: runnerID},
		Details:   map[string]interface{}{"computerName": computerName},
	})
}

// LogRunnerDraining logs a runner entering the draining status.
func (a *Logger) LogRunnerDraining(ctx context.Context, runnerID, computerName string) {
	a.Log(ctx, &Event{
		EventType: EventRunnerDraining,
		Message:   "runner marked draining",
		Outcome:   "success",
		Resource:  &Resource{Kind: "runner", Name: runnerID},
		Details:   map[string]interface{}{"computerName": computerName},
	})
}

// LogRunnerDeregistered logs the successful deregistration of a drained runner.
func (a *Logger) LogRunnerDeregistered(ctx context.Context, runnerID, computerName string) {
	a.Log(ctx, &Event{
		EventType: EventRunnerDeregistered,
		Message:   "runner deregistered",
		Outcome:   "success",
		Resource:  &Resource{Kind: "runner", Name: runnerID},
		Details:   map[string]interface{}{"computerName": computerName},
	})
}

// LogRunnerDeregisterFailed logs a failed deregistration attempt.
func (a *Logger) LogRunnerDeregisterFailed(ctx context.Context, runnerID, reason string) {
	a.Log(ctx, &Event{
		EventType: EventRunnerDeregisterFailed,
		Message:   "runner deregistration failed",
		Outcome:   "failure",
		Resource:  &Resource{Kind: "runner", Name: runnerID},
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogScaleOut logs the outcome of a scale-out action.
func (a *Logger) LogScaleOut(ctx context.Context, fromCapacity, toCapacity int, outcome string) {
	eventType := EventScaleOutCompleted
	if outcome != "success" {
		eventType = EventScaleOutFailed
	}
	a.Log(ctx, &Event{
		EventType: eventType,
		Message:   "scale-out action taken",
		Outcome:   outcome,
		Details: map[string]interface{}{
			"fromCapacity": fromCapacity,
			"toCapacity":   toCapacity,
		},
	})
}

// LogScaleOutBlocked logs a scale-out suppressed by its cooldown.
func (a *Logger) LogScaleOutBlocked(ctx context.Context, reason string) {
	a.Log(ctx, &Event{
		EventType: EventScaleOutBlocked,
		Message:   "scale-out blocked by cooldown",
		Outcome:   "blocked",
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogScaleIn logs the outcome of a scale-in action.
func (a *Logger) LogScaleIn(ctx context.Context, drained, step int, outcome string) {
	eventType := EventScaleInCompleted
	if outcome != "success" {
		eventType = EventScaleInFailed
	}
	a.Log(ctx, &Event{
		EventType: eventType,
		Message:   "scale-in action taken",
		Outcome:   outcome,
		Details: map[string]interface{}{
			"drained": drained,
			"step":    step,
		},
	})
}

// LogScaleInBlocked logs a scale-in suppressed by its cooldown.
func (a *Logger) LogScaleInBlocked(ctx context.Context, reason string) {
	a.Log(ctx, &Event{
		EventType: EventScaleInBlocked,
		Message:   "scale-in blocked by cooldown",
		Outcome:   "blocked",
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogAPICall logs a control-plane API call outcome.
func (a *Logger) LogAPICall(ctx context.Context, method, path string, statusCode int, duration time.Duration, outcome string) {
	eventType := EventAPICallSuccess
	if outcome != "success" {
		eventType = EventAPICallFailed
	}
	a.Log(ctx, &Event{
		EventType: eventType,
		Message:   "control plane API call",
		Outcome:   outcome,
		Duration:  duration,
		Details: map[string]interface{}{
			"method":     method,
			"path":       path,
			"statusCode": statusCode,
		},
	})
}

// LogCircuitBreakerOpened logs the control-plane circuit breaker tripping open.
func (a *Logger) LogCircuitBreakerOpened(ctx context.Context) {
	a.Log(ctx, &Event{
		EventType: EventCircuitBreakerOpened,
		Message:   "control plane circuit breaker opened",
		Outcome:   "blocked",
	})
}

// LogCircuitBreakerClosed logs the control-plane circuit breaker recovering.
func (a *Logger) LogCircuitBreakerClosed(ctx context.Context) {
	a.Log(ctx, &Event{
		EventType: EventCircuitBreakerClosed,
		Message:   "control plane circuit breaker closed",
		Outcome:   "success",
	})
}

// LogAutoscalerStarted logs the process starting its reconcile loop.
func (a *Logger) LogAutoscalerStarted(ctx context.Context) {
	a.Log(ctx, &Event{
		EventType: EventAutoscalerStarted,
		Message:   "autoscaler started",
		Outcome:   "success",
	})
}

// LogAutoscalerStopped logs the process shutting its reconcile loop down.
func (a *Logger) LogAutoscalerStopped(ctx context.Context, reason string) {
	a.Log(ctx, &Event{
		EventType: EventAutoscalerStopped,
		Message:   "autoscaler stopped",
		Outcome:   "success",
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogReconcileFailed logs a failed reconcile tick.
func (a *Logger) LogReconcileFailed(ctx context.Context, phase, reason string) {
	a.Log(ctx, &Event{
		EventType: EventReconcileFailed,
		Message:   "reconcile tick failed",
		Outcome:   "failure",
		Details: map[string]interface{}{
			"phase":  phase,
			"reason": reason,
		},
	})
}

var (
	global   *Logger
	globalMu sync.RWMutex
)

// Global returns the process-wide audit logger, initializing an
// enabled logger backed by a no-op zap.Logger on first use if SetGlobal
// was never called.
func Global() *Logger {
	globalMu.RLock()
	logger := global
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return global
	}
	global = New(nil)
	return global
}

// SetGlobal installs the process-wide audit logger.
func SetGlobal(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = logger
}
