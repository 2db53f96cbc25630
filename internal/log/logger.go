// Package log builds the autoscaler's structured logger and the
// domain-specific helper functions used to record reconcile phases,
// scale decisions, and control-plane calls.
package log

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

// RequestIDKey is the context key under which a tick's correlation ID is stored.
const RequestIDKey ContextKey = "requestID"

// New builds a structured logger. development selects a
// human-readable, colorized console encoder; production selects the
// JSON encoder used in deployed environments.
func New(development bool) (*zap.Logger, error) {
	var config zap.Config
	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// WithRequestID stamps ctx with a fresh correlation ID for one reconcile tick.
func WithRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, RequestIDKey, uuid.New().String())
}

// RequestID retrieves the tick's correlation ID from ctx, or "" if absent.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestIDField returns a child logger carrying ctx's correlation ID, if any.
func WithRequestIDField(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With(zap.String("requestID", id))
	}
	return logger
}

// LogReconcileStart logs the beginning of a reconciliation tick.
func LogReconcileStart(logger *zap.Logger, queuedJobs, runnerCount int) {
	logger.Info("reconcile tick starting",
		zap.Int("queuedJobs", queuedJobs),
		zap.Int("runnerCount", runnerCount),
	)
}

// LogReconcileComplete logs the successful completion of a tick.
func LogReconcileComplete(logger *zap.Logger, action string, duration string) {
	logger.Info("reconcile tick completed",
		zap.String("action", action),
		zap.String("duration", duration),
	)
}

// LogReconcileError logs a tick that aborted with an error.
func LogReconcileError(logger *zap.Logger, phase string, err error) {
	logger.Error("reconcile tick failed",
		zap.String("phase", phase),
		zap.Error(err),
	)
}

// LogScaleOutDecision logs a scale-out decision.
func LogScaleOutDecision(logger *zap.Logger, reactivated, provisioned, currentCapacity, desiredCapacity int) {
	logger.Info("scale-out decision made",
		zap.String("action", "scale-out"),
		zap.Int("reactivatedRunners", reactivated),
		zap.Int("provisionedCapacity", provisioned),
		zap.Int("currentCapacity", currentCapacity),
		zap.Int("desiredCapacity", desiredCapacity),
	)
}

// LogScaleInDecision logs a scale-in decision.
func LogScaleInDecision(logger *zap.Logger, drained int, step int) {
	logger.Info("scale-in decision made",
		zap.String("action", "scale-in"),
		zap.Int("runnersDrained", drained),
		zap.Int("step", step),
	)
}

// LogTerminateDecision logs the outcome of a terminate pass.
func LogTerminateDecision(logger *zap.Logger, terminated int, newCapacity int) {
	logger.Info("terminate pass completed",
		zap.String("action", "terminate"),
		zap.Int("terminatedCount", terminated),
		zap.Int("newCapacity", newCapacity),
	)
}

// LogCooldownGateHit logs that an action was suppressed by its cooldown.
func LogCooldownGateHit(logger *zap.Logger, action string, elapsed, cooldown string) {
	logger.Info("cooldown gate hit, action suppressed",
		zap.String("action", action),
		zap.String("elapsed", elapsed),
		zap.String("cooldown", cooldown),
	)
}

// LogRunnerTransition logs a single runner's status transition.
func LogRunnerTransition(logger *zap.Logger, runnerID, computerName, fromStatus, toStatus string) {
	logger.Info("runner status transition",
		zap.String("runnerID", runnerID),
		zap.String("computerName", computerName),
		zap.String("fromStatus", fromStatus),
		zap.String("toStatus", toStatus),
	)
}

// LogRunnerTerminated logs the deregistration of a drained, idle runner.
func LogRunnerTerminated(logger *zap.Logger, runnerID, computerName string) {
	logger.Info("runner deregistered",
		zap.String("runnerID", runnerID),
		zap.String("computerName", computerName),
	)
}

// LogAPICall logs an outbound control-plane API call at debug level.
func LogAPICall(logger *zap.Logger, method, endpoint, requestID string) {
	logger.Debug("control plane API call",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.String("requestID", requestID),
	)
}

// LogAPIError logs a failed control-plane API call.
func LogAPIError(logger *zap.Logger, method, endpoint string, statusCode int, err error) {
	logger.Error("control plane API error",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("statusCode", statusCode),
		zap.Error(err),
	)
}
