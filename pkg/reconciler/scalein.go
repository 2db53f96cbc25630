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

// ScaleIn drains up to step runners, protecting every current member
// from cloud-initiated scale-in first so the provider cannot terminate
// a busy VM while the engine is shrinking the scale set. It does not
// reduce desired capacity directly; that happens in Terminate once
// drained runners quiesce.
func (e *Engine) ScaleIn(ctx context.Context, logger *zap.Logger, step int) error {
	snapshot, err := e.controlPlane.GetRunnerGroup(ctx)
	if err != nil {
		return fmt.Errorf("fetch runner group: %w", err)
	}
	if snapshot.Len() == 0 {
		return nil
	}

	lastScaleIn, present, err := e.scaler.GetLastScaleInEvent(ctx)
	if err != nil {
		return fmt.Errorf("get last scale-in event: %w", err)
	}
	if present && time.Since(lastScaleIn) < e.config.ScaleInCooldown {
		elapsed := time.Since(lastScaleIn)
		applog.LogCooldownGateHit(logger, "scale-in", elapsed.String(), e.config.ScaleInCooldown.String())
		e.audit.LogScaleInBlocked(ctx, fmt.Sprintf("cooldown active: %s elapsed of %s", elapsed, e.config.ScaleInCooldown))
		metrics.RecordCooldownGateHit("scale-in")
		return nil
	}

	for _, r := range snapshot.Runners {
		if err := e.scaler.AddScaleInProtection(ctx, r); err != nil {
			return fmt.Errorf("protect runner %s: %w", r.RunnerID, err)
		}
	}

	draining := snapshot.Draining()
	drainable := snapshot.Len() - len(draining) - e.config.MinRunners
	if drainable <= 0 {
		return nil
	}

	drainCount := step
	if drainable < drainCount {
		drainCount = drainable
	}

	drained := 0
	for _, r := range snapshot.Runners {
		if drainCount == 0 {
			break
		}
		if r.IsDraining() {
			continue
		}
		if err := e.drain(ctx, logger, r); err != nil {
			return err
		}
		drainCount--
		drained++
	}

	if drained == 0 {
		return nil
	}

	now := time.Now()
	if err := e.scaler.SetLastScaleInEvent(ctx, now); err != nil {
		return fmt.Errorf("set last scale-in event: %w", err)
	}

	applog.LogScaleInDecision(logger, drained, step)
	e.audit.LogScaleIn(ctx, drained, step, "success")
	metrics.RecordScaleAction("scale-in", "success")
	return nil
}

func (e *Engine) drain(ctx context.Context, logger *zap.Logger, r runner.Runner) error {
	if err := e.controlPlane.UpdateRunnerStatus(ctx, r.RunnerID, runner.StatusDraining); err != nil {
		return fmt.Errorf("drain runner %s: %w", r.RunnerID, err)
	}
	applog.LogRunnerTransition(logger, r.RunnerID, r.ComputerName, string(runner.StatusActive), string(runner.StatusDraining))
	e.audit.LogRunnerDraining(ctx, r.RunnerID, r.ComputerName)
	metrics.RecordRunnerTransition(string(runner.StatusActive), string(runner.StatusDraining))
	return nil
}
