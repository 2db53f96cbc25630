// Package cloudscaler abstracts the cloud-native scale set (an AWS Auto
// Scaling Group or an Azure VM Scale Set) that backs a runner pool.
package cloudscaler

import (
	"context"
	"time"

	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

// CloudVM is a cloud provider's view of one scale-set member, opaque to
// the reconcile engine except for the hostname used to correlate it
// with a control-plane Runner.
type CloudVM struct {
	// Hostname is the provider-reported hostname used for correlation:
	// exact match against Runner.ComputerName on AWS (PrivateDnsName),
	// hostname-prefix match on Azure (OS profile ComputerName).
	Hostname string

	ProtectedFromScaleIn bool
}

// CloudScaler is the capability set the reconcile engine needs from the
// underlying cloud scale set. AWSScaler and AzureScaler are its two
// concrete implementations; correlation between a Runner and a CloudVM
// is provider-local and hidden behind AddScaleInProtection/
// RemoveScaleInProtection.
type CloudScaler interface {
	// ListMembers returns a snapshot of the scale set's current members.
	ListMembers(ctx context.Context) ([]CloudVM, error)

	// SetDesiredCapacity requests an absolute target capacity. This is
	// asynchronous on the provider side; the scaler does not await
	// convergence.
	SetDesiredCapacity(ctx context.Context, n int) error

	// AddScaleInProtection locates the CloudVM corresponding to r and
	// enables scale-in protection on it. Idempotent: does not reissue
	// the mutation if the VM is already protected. If no corresponding
	// CloudVM is found, this logs and returns nil — the runner may
	// already be gone.
	AddScaleInProtection(ctx context.Context, r runner.Runner) error

	// RemoveScaleInProtection is the inverse of AddScaleInProtection,
	// with the same idempotence and missing-VM handling.
	RemoveScaleInProtection(ctx context.Context, r runner.Runner) error

	// CountExistingVMs returns the provider's own view of current
	// capacity (Azure: SKU capacity; AWS: number of ASG members).
	CountExistingVMs(ctx context.Context) (int, error)

	// GetLastScaleOutEvent/GetLastScaleInEvent return the timestamp of
	// the last successful action of that kind, or (zero, false) if none
	// has been recorded.
	GetLastScaleOutEvent(ctx context.Context) (time.Time, bool, error)
	GetLastScaleInEvent(ctx context.Context) (time.Time, bool, error)

	// SetLastScaleOutEvent/SetLastScaleInEvent persist the cooldown
	// timestamp for the corresponding action.
	SetLastScaleOutEvent(ctx context.Context, t time.Time) error
	SetLastScaleInEvent(ctx context.Context, t time.Time) error
}
