package reconciler

import (
	"context"
	"time"

	"github.com/stackguardian/runner-autoscaler/pkg/cloudscaler"
	"github.com/stackguardian/runner-autoscaler/pkg/controlplane"
	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

var (
	_ controlplane.ControlPlaneClient = (*fakeControlPlane)(nil)
	_ cloudscaler.CloudScaler         = (*fakeScaler)(nil)
)

// fakeControlPlane is an in-memory ControlPlaneClient test double.
type fakeControlPlane struct {
	snapshot     runner.Snapshot
	deregistered []string
	statusCalls  []statusCall

	getErr        error
	updateErr     error
	deregisterErr error
}

type statusCall struct {
	runnerID string
	status   runner.Status
}

func (f *fakeControlPlane) GetRunnerGroup(ctx context.Context) (runner.Snapshot, error) {
	if f.getErr != nil {
		return runner.Snapshot{}, f.getErr
	}
	out := runner.Snapshot{QueuedJobs: f.snapshot.QueuedJobs}
	out.Runners = append(out.Runners, f.snapshot.Runners...)
	return out, nil
}

func (f *fakeControlPlane) UpdateRunnerStatus(ctx context.Context, runnerID string, status runner.Status) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.statusCalls = append(f.statusCalls, statusCall{runnerID: runnerID, status: status})
	for i, r := range f.snapshot.Runners {
		if r.RunnerID == runnerID {
			f.snapshot.Runners[i].Status = status
		}
	}
	return nil
}

func (f *fakeControlPlane) DeregisterRunner(ctx context.Context, runnerID string) error {
	if f.deregisterErr != nil {
		return f.deregisterErr
	}
	f.deregistered = append(f.deregistered, runnerID)
	remaining := f.snapshot.Runners[:0]
	for _, r := range f.snapshot.Runners {
		if r.RunnerID != runnerID {
			remaining = append(remaining, r)
		}
	}
	f.snapshot.Runners = remaining
	return nil
}

// fakeScaler is an in-memory CloudScaler test double.
type fakeScaler struct {
	members         []cloudscaler.CloudVM
	desiredCapacity int
	existingVMs     int

	lastScaleOut   time.Time
	hasScaleOut    bool
	lastScaleIn    time.Time
	hasScaleIn     bool

	protectCalls   []string
	unprotectCalls []string

	setCapacityErr error
}

func (f *fakeScaler) ListMembers(ctx context.Context) ([]cloudscaler.CloudVM, error) {
	return f.members, nil
}

func (f *fakeScaler) SetDesiredCapacity(ctx context.Context, n int) error {
	if f.setCapacityErr != nil {
		return f.setCapacityErr
	}
	f.desiredCapacity = n
	return nil
}

func (f *fakeScaler) AddScaleInProtection(ctx context.Context, r runner.Runner) error {
	f.protectCalls = append(f.protectCalls, r.RunnerID)
	return nil
}

func (f *fakeScaler) RemoveScaleInProtection(ctx context.Context, r runner.Runner) error {
	f.unprotectCalls = append(f.unprotectCalls, r.RunnerID)
	return nil
}

func (f *fakeScaler) CountExistingVMs(ctx context.Context) (int, error) {
	return f.existingVMs, nil
}

func (f *fakeScaler) GetLastScaleOutEvent(ctx context.Context) (time.Time, bool, error) {
	return f.lastScaleOut, f.hasScaleOut, nil
}

func (f *fakeScaler) GetLastScaleInEvent(ctx context.Context) (time.Time, bool, error) {
	return f.lastScaleIn, f.hasScaleIn, nil
}

func (f *fakeScaler) SetLastScaleOutEvent(ctx context.Context, t time.Time) error {
	f.lastScaleOut = t
	f.hasScaleOut = true
	return nil
}

func (f *fakeScaler) SetLastScaleInEvent(ctx context.Context, t time.Time) error {
	f.lastScaleIn = t
	f.hasScaleIn = true
	return nil
}
