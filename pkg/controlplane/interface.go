package controlplane

import (
	"context"

	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

// ControlPlaneClient is the capability set the reconcile engine needs
// from the job-orchestration control plane. Client is its sole
// implementation; the interface exists so the engine can be tested
// against a fake.
type ControlPlaneClient interface {
	// GetRunnerGroup fetches the current runner-group snapshot.
	GetRunnerGroup(ctx context.Context) (runner.Snapshot, error)

	// UpdateRunnerStatus transitions a runner to status on the control plane.
	UpdateRunnerStatus(ctx context.Context, runnerID string, status runner.Status) error

	// DeregisterRunner removes a runner from the control plane's runner group.
	DeregisterRunner(ctx context.Context, runnerID string) error
}

var _ ControlPlaneClient = (*Client)(nil)
