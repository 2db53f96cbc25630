// Package reconciler implements the autoscaler's decision core: one
// Reconcile call classifies a scale action from queue pressure and
// runner state, then drives the cloud scaler and control plane toward
// the resulting target.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stackguardian/runner-autoscaler/internal/audit"
	applog "github.com/stackguardian/runner-autoscaler/internal/log"
	"github.com/stackguardian/runner-autoscaler/internal/metrics"
	"github.com/stackguardian/runner-autoscaler/pkg/cloudscaler"
	"github.com/stackguardian/runner-autoscaler/pkg/controlplane"
	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

// Config holds the thresholds, steps, and cooldowns that parameterize
// a single Engine's decisions. It is derived once from internal/config
// at process startup.
type Config struct {
	ScaleOutThreshold int
	ScaleInThreshold  int
	ScaleOutStep      int
	ScaleInStep       int
	MinRunners        int
	ScaleOutCooldown  time.Duration
	ScaleInCooldown   time.Duration
}

// Engine is the reconcile loop's decision core. It holds no
// process-wide state beyond its injected collaborators; every
// Reconcile call operates on a fresh snapshot pulled from the control
// plane.
type Engine struct {
	controlPlane controlplane.ControlPlaneClient
	scaler       cloudscaler.CloudScaler
	config       Config
	audit        *audit.Logger
	logger       *zap.Logger
}

// New builds an Engine from its collaborators and configuration.
func New(controlPlane controlplane.ControlPlaneClient, scaler cloudscaler.CloudScaler, config Config, auditLogger *audit.Logger, logger *zap.Logger) *Engine {
	if auditLogger == nil {
		auditLogger = audit.Global()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		controlPlane: controlPlane,
		scaler:       scaler,
		config:       config,
		audit:        auditLogger,
		logger:       logger,
	}
}

// Reconcile executes one reconciliation pass: it fetches the current
// runner-group snapshot, classifies exactly one of scale-out,
// scale-in, or no action, and always finishes with a terminate pass
// so capacity shrinks for any runner whose drain has completed.
func (e *Engine) Reconcile(ctx context.Context) error {
	ctx = applog.WithRequestID(ctx)
	logger := applog.WithRequestIDField(ctx, e.logger)
	start := time.Now()

	snapshot, err := e.controlPlane.GetRunnerGroup(ctx)
	if err != nil {
		e.failTick(ctx, logger, "fetch_snapshot", err)
		return fmt.Errorf("reconcile: fetch runner group: %w", err)
	}

	applog.LogReconcileStart(logger, snapshot.QueuedJobs, snapshot.Len())
	metrics.QueuedJobs.Set(float64(snapshot.QueuedJobs))
	e.recordRunnerCounts(snapshot)

	action := e.classify(snapshot)

	switch action {
	case actionScaleOut:
		if err := e.ScaleOut(ctx, logger); err != nil {
			e.failTick(ctx, logger, "scale_out", err)
			return fmt.Errorf("reconcile: scale out: %w", err)
		}
		if err := e.Terminate(ctx, logger); err != nil {
			e.failTick(ctx, logger, "terminate", err)
			return fmt.Errorf("reconcile: terminate: %w", err)
		}
	case actionScaleIn:
		if err := e.ScaleIn(ctx, logger, e.config.ScaleInStep); err != nil {
			e.failTick(ctx, logger, "scale_in", err)
			return fmt.Errorf("reconcile: scale in: %w", err)
		}
		if err := e.Terminate(ctx, logger); err != nil {
			e.failTick(ctx, logger, "terminate", err)
			return fmt.Errorf("reconcile: terminate: %w", err)
		}
	default:
		if err := e.Terminate(ctx, logger); err != nil {
			e.failTick(ctx, logger, "terminate", err)
			return fmt.Errorf("reconcile: terminate: %w", err)
		}
	}

	duration := time.Since(start)
	metrics.RecordReconcile(string(action), duration)
	applog.LogReconcileComplete(logger, string(action), duration.String())
	return nil
}

type reconcileAction string

const (
	actionScaleOut reconcileAction = "scale-out"
	actionScaleIn   reconcileAction = "scale-in"
	actionNone      reconcileAction = "none"
)

// classify implements the per-tick branch table: exactly one of
// scale-out, scale-in, or no-op fires, evaluated in order.
func (e *Engine) classify(snapshot runner.Snapshot) reconcileAction {
	switch {
	case snapshot.QueuedJobs >= e.config.ScaleOutThreshold,
		snapshot.Len() < e.config.MinRunners,
		snapshot.QueuedJobs > 0 && snapshot.Len() == 0:
		return actionScaleOut
	case snapshot.QueuedJobs <= e.config.ScaleInThreshold:
		return actionScaleIn
	default:
		return actionNone
	}
}

func (e *Engine) failTick(ctx context.Context, logger *zap.Logger, phase string, err error) {
	applog.LogReconcileError(logger, phase, err)
	e.audit.LogReconcileFailed(ctx, phase, err.Error())
	metrics.RecordReconcileError(phase)
	metrics.RecordReconcile("error", 0)
}

func (e *Engine) recordRunnerCounts(snapshot runner.Snapshot) {
	active, draining := 0, 0
	for _, r := range snapshot.Runners {
		if r.IsDraining() {
			draining++
		} else {
			active++
		}
	}
	metrics.RunnerCount.WithLabelValues(string(runner.StatusActive)).Set(float64(active))
	metrics.RunnerCount.WithLabelValues(string(runner.StatusDraining)).Set(float64(draining))
}

// clampMin enforces the desiredCapacity >= MIN_RUNNERS invariant on
// any engine-initiated capacity mutation.
func clampMin(n, min int) int {
	if n < min {
		return min
	}
	return n
}
