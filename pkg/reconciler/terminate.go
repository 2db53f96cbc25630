package reconciler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	applog "github.com/stackguardian/runner-autoscaler/internal/log"
	"github.com/stackguardian/runner-autoscaler/internal/metrics"
)

// Terminate deregisters every drained, idle runner and shrinks desired
// capacity by the number terminated. It always runs last in a tick so
// capacity reflects any drain that completed since the snapshot used
// for classification.
func (e *Engine) Terminate(ctx context.Context, logger *zap.Logger) error {
	snapshot, err := e.controlPlane.GetRunnerGroup(ctx)
	if err != nil {
		return fmt.Errorf("fetch runner group: %w", err)
	}

	terminated := 0
	for _, r := range snapshot.Runners {
		if !r.IsDraining() || !r.IsIdle() {
			continue
		}

		if err := e.scaler.RemoveScaleInProtection(ctx, r); err != nil {
			return fmt.Errorf("unprotect runner %s: %w", r.RunnerID, err)
		}
		if err := e.controlPlane.DeregisterRunner(ctx, r.RunnerID); err != nil {
			e.audit.LogRunnerDeregisterFailed(ctx, r.RunnerID, err.Error())
			return fmt.Errorf("deregister runner %s: %w", r.RunnerID, err)
		}

		applog.LogRunnerTerminated(logger, r.RunnerID, r.ComputerName)
		e.audit.LogRunnerDeregistered(ctx, r.RunnerID, r.ComputerName)
		terminated++
	}

	if terminated == 0 {
		return nil
	}

	current, err := e.scaler.CountExistingVMs(ctx)
	if err != nil {
		return fmt.Errorf("count existing VMs: %w", err)
	}
	target := clampMin(current-terminated, e.config.MinRunners)
	if err := e.scaler.SetDesiredCapacity(ctx, target); err != nil {
		return fmt.Errorf("set desired capacity: %w", err)
	}
	metrics.DesiredCapacity.Set(float64(target))

	applog.LogTerminateDecision(logger, terminated, target)
	metrics.RecordScaleAction("terminate", "success")
	return nil
}
