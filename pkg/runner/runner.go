// Package runner defines the data model the reconcile engine operates on:
// the immutable per-tick snapshot of a runner group and its lifecycle
// states.
package runner

// Status is a runner's lifecycle state as reported by the control plane.
type Status string

const (
	// StatusActive runners are eligible to receive jobs and are protected
	// from cloud-initiated scale-in.
	StatusActive Status = "ACTIVE"

	// StatusDraining runners no longer receive new jobs; once their
	// running and pending task counts both reach zero they are eligible
	// for termination.
	StatusDraining Status = "DRAINING"
)

// Runner is an immutable snapshot of one control-plane runner record.
type Runner struct {
	RunnerID     string
	ComputerName string
	Status       Status

	RunningTasks int
	PendingTasks int

	AgentConnected bool

	// IPAddress, ContainerName and InstanceARN are informational
	// passthrough fields; the engine never branches on them and does not
	// include them in logs or audit events. The control-plane client
	// fills IPAddress and ContainerName but never InstanceARN.
	IPAddress    string
	ContainerName string
	InstanceARN  string
}

// IsDraining reports whether the runner is in the DRAINING state.
func (r Runner) IsDraining() bool {
	return r.Status == StatusDraining
}

// IsIdle reports whether a draining runner has finished all work and is
// safe to terminate.
func (r Runner) IsIdle() bool {
	return r.RunningTasks == 0 && r.PendingTasks == 0
}

// Snapshot is the immutable per-tick view of a runner group: its member
// runners and the control plane's queued-job count.
type Snapshot struct {
	Runners    []Runner
	QueuedJobs int
}

// Draining returns the subset of runners currently in the DRAINING state,
// preserving snapshot order.
func (s Snapshot) Draining() []Runner {
	out := make([]Runner, 0, len(s.Runners))
	for _, r := range s.Runners {
		if r.IsDraining() {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of runners in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Runners)
}
