package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	applog "github.com/stackguardian/runner-autoscaler/internal/log"
	"github.com/stackguardian/runner-autoscaler/internal/metrics"
	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

// ScaleOut implements the reactivation-first scale-out policy:
// reviving drained runners is cheaper than provisioning new VMs and
// reclaims machines still holding warm state. It is gated by
// SCALE_OUT_COOLDOWN against the last successful scale-out.
func (e *Engine) ScaleOut(ctx context.Context, logger *zap.Logger) error {
	lastScaleOut, present, err := e.scaler.GetLastScaleOutEvent(ctx)
	if err != nil {
		return fmt.Errorf("get last scale-out event: %w", err)
	}
	if present && time.Since(lastScaleOut) < e.config.ScaleOutCooldown {
		elapsed := time.Since(lastScaleOut)
		applog.LogCooldownGateHit(logger, "scale-out", elapsed.String(), e.config.ScaleOutCooldown.String())
		e.audit.LogScaleOutBlocked(ctx, fmt.Sprintf("cooldown active: %s elapsed of %s", elapsed, e.config.ScaleOutCooldown))
		metrics.RecordCooldownGateHit("scale-out")
		return nil
	}

	snapshot, err := e.controlPlane.GetRunnerGroup(ctx)
	if err != nil {
		return fmt.Errorf("refresh runner group: %w", err)
	}

	drained := snapshot.Draining()
	reactivated := 0
	provisioned := 0
	capacityBefore := snapshot.Len()
	capacityAfter := capacityBefore

	if len(drained) >= e.config.ScaleOutStep {
		for i := 0; i < e.config.ScaleOutStep; i++ {
			if err := e.reactivate(ctx, logger, drained[i]); err != nil {
				return err
			}
			reactivated++
		}
	} else {
		for _, r := range drained {
			if err := e.reactivate(ctx, logger, r); err != nil {
				return err
			}
			reactivated++
		}

		current, err := e.scaler.CountExistingVMs(ctx)
		if err != nil {
			return fmt.Errorf("count existing VMs: %w", err)
		}
		target := clampMin(current+e.config.ScaleOutStep-len(drained), e.config.MinRunners)
		if err := e.scaler.SetDesiredCapacity(ctx, target); err != nil {
			return fmt.Errorf("set desired capacity: %w", err)
		}
		metrics.DesiredCapacity.Set(float64(target))
		provisioned = target - current
		capacityBefore = current
		capacityAfter = target
	}

	now := time.Now()
	if err := e.scaler.SetLastScaleOutEvent(ctx, now); err != nil {
		return fmt.Errorf("set last scale-out event: %w", err)
	}

	applog.LogScaleOutDecision(logger, reactivated, provisioned, capacityBefore, capacityAfter)
	e.audit.LogScaleOut(ctx, capacityBefore, capacityAfter, "success")
	metrics.RecordScaleAction("scale-out", "success")
	return nil
}

func (e *Engine) reactivate(ctx context.Context, logger *zap.Logger, r runner.Runner) error {
	if err := e.controlPlane.UpdateRunnerStatus(ctx, r.RunnerID, runner.StatusActive); err != nil {
		return fmt.Errorf("reactivate runner %s: %w", r.RunnerID, err)
	}
	applog.LogRunnerTransition(logger, r.RunnerID, r.ComputerName, string(runner.StatusDraining), string(runner.StatusActive))
	e.audit.LogRunnerActivated(ctx, r.RunnerID, r.ComputerName)
	metrics.RecordRunnerTransition(string(runner.StatusDraining), string(runner.StatusActive))
	return nil
}
