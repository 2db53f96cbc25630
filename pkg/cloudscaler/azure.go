package cloudscaler

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/compute/mgmt/2020-06-01/compute"
	"github.com/Azure/go-autorest/autorest"
	"github.com/Azure/go-autorest/autorest/azure/auth"
	"go.uber.org/zap"

	"github.com/stackguardian/runner-autoscaler/pkg/blobstore"
	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

// AzureScaler implements CloudScaler against an Azure VM Scale Set.
// Grounded on the original azure_service.py, with two corrections called
// out in spec.md §9: azureInstanceProtected no longer treats a nil
// ProtectionPolicy as "protected", and the cooldown reads inherited from
// cooldownLedger are no longer inverted.
type AzureScaler struct {
	vmss          compute.VirtualMachineScaleSetsClient
	vmssVMs       compute.VirtualMachineScaleSetVMsClient
	resourceGroup string
	scaleSetName  string
	logger        *zap.Logger

	cooldownLedger
}

// AzureCredentials holds the Azure Active Directory service-principal
// credentials used to authorize against the Resource Manager API.
type AzureCredentials struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// NewAzureScaler builds an AzureScaler for the named scale set, using
// client-credential authorization when creds is fully populated and
// falling back to ambient environment credentials otherwise.
func NewAzureScaler(creds AzureCredentials, resourceGroup, scaleSetName string, store blobstore.BlobStore, scaleOutBlobName, scaleInBlobName string, logger *zap.Logger) (*AzureScaler, error) {
	authorizer, err := azureAuthorizer(creds)
	if err != nil {
		return nil, err
	}

	vmss := compute.NewVirtualMachineScaleSetsClient(creds.SubscriptionID)
	vmss.Authorizer = authorizer
	vmss.Sender = autorest.CreateSender()

	vmssVMs := compute.NewVirtualMachineScaleSetVMsClient(creds.SubscriptionID)
	vmssVMs.Authorizer = authorizer
	vmssVMs.Sender = autorest.CreateSender()

	return &AzureScaler{
		vmss:           vmss,
		vmssVMs:        vmssVMs,
		resourceGroup:  resourceGroup,
		scaleSetName:   scaleSetName,
		logger:         logger,
		cooldownLedger: newCooldownLedger(store, scaleOutBlobName, scaleInBlobName),
	}, nil
}

func azureAuthorizer(creds AzureCredentials) (autorest.Authorizer, error) {
	if creds.TenantID != "" && creds.ClientID != "" && creds.ClientSecret != "" {
		authorizer, err := auth.NewClientCredentialsConfig(creds.ClientID, creds.ClientSecret, creds.TenantID).Authorizer()
		if err != nil {
			return nil, fmt.Errorf("cloudscaler(azure): client credentials authorizer: %w", err)
		}
		return authorizer, nil
	}

	authorizer, err := auth.NewAuthorizerFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("cloudscaler(azure): environment authorizer: %w", err)
	}
	return authorizer, nil
}

func (s *AzureScaler) listVMs(ctx context.Context) ([]compute.VirtualMachineScaleSetVM, error) {
	var vms []compute.VirtualMachineScaleSetVM

	pager, err := s.vmssVMs.List(ctx, s.resourceGroup, s.scaleSetName, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("cloudscaler(azure): list scale set vms: %w", err)
	}

	for pager.NotDone() {
		vms = append(vms, pager.Values()...)
		if err := pager.NextWithContext(ctx); err != nil {
			return nil, fmt.Errorf("cloudscaler(azure): page scale set vms: %w", err)
		}
	}
	return vms, nil
}

// azureInstanceProtected returns the scale-in protection flag of vm. The
// original _is_vm_scale_in_protected returned the flag only when
// protection_policy was None, the inverse of the intended check; this
// returns the actual protect_from_scale_in value, defaulting to false
// when no protection policy is set at all.
func azureInstanceProtected(vm compute.VirtualMachineScaleSetVM) bool {
	if vm.VirtualMachineScaleSetVMProperties == nil {
		return false
	}
	policy := vm.VirtualMachineScaleSetVMProperties.ProtectionPolicy
	if policy == nil || policy.ProtectFromScaleIn == nil {
		return false
	}
	return *policy.ProtectFromScaleIn
}

func vmHostname(vm compute.VirtualMachineScaleSetVM) string {
	if vm.VirtualMachineScaleSetVMProperties == nil || vm.VirtualMachineScaleSetVMProperties.OsProfile == nil {
		return ""
	}
	if name := vm.VirtualMachineScaleSetVMProperties.OsProfile.ComputerName; name != nil {
		return *name
	}
	return ""
}

func (s *AzureScaler) ListMembers(ctx context.Context) ([]CloudVM, error) {
	vms, err := s.listVMs(ctx)
	if err != nil {
		return nil, err
	}

	members := make([]CloudVM, 0, len(vms))
	for _, vm := range vms {
		members = append(members, CloudVM{
			Hostname:             vmHostname(vm),
			ProtectedFromScaleIn: azureInstanceProtected(vm),
		})
	}
	return members, nil
}

func (s *AzureScaler) SetDesiredCapacity(ctx context.Context, n int) error {
	capacity := int64(n)
	_, err := s.vmss.Update(ctx, s.resourceGroup, s.scaleSetName, compute.VirtualMachineScaleSetUpdate{
		Sku: &compute.Sku{Capacity: &capacity},
	})
	if err != nil {
		return fmt.Errorf("cloudscaler(azure): update scale set capacity %d: %w", n, err)
	}
	return nil
}

// findVM locates the scale-set VM whose OS profile computer name is a
// prefix of r.ComputerName. Azure VMSS truncates the configured computer
// name, so correlation is hostname-prefix, not exact, match — unlike AWS.
func (s *AzureScaler) findVM(ctx context.Context, r runner.Runner) (compute.VirtualMachineScaleSetVM, bool, error) {
	vms, err := s.listVMs(ctx)
	if err != nil {
		return compute.VirtualMachineScaleSetVM{}, false, err
	}
	vm, found := matchVMByComputerName(vms, r.ComputerName)
	return vm, found, nil
}

func matchVMByComputerName(vms []compute.VirtualMachineScaleSetVM, computerName string) (compute.VirtualMachineScaleSetVM, bool) {
	for _, vm := range vms {
		name := vmHostname(vm)
		if name != "" && strings.HasPrefix(computerName, name) {
			return vm, true
		}
	}
	return compute.VirtualMachineScaleSetVM{}, false
}

func (s *AzureScaler) setInstanceProtection(ctx context.Context, r runner.Runner, protect bool) error {
	vm, found, err := s.findVM(ctx, r)
	if err != nil {
		return err
	}
	if !found {
		s.logger.Warn("cloudscaler(azure): no matching VM for runner, skipping protection toggle",
			zap.String("runnerID", r.RunnerID), zap.String("computerName", r.ComputerName))
		return nil
	}
	if azureInstanceProtected(vm) == protect {
		return nil
	}

	future, err := s.vmssVMs.Update(ctx, s.resourceGroup, s.scaleSetName, *vm.InstanceID, compute.VirtualMachineScaleSetVM{
		VirtualMachineScaleSetVMProperties: &compute.VirtualMachineScaleSetVMProperties{
			ProtectionPolicy: &compute.VirtualMachineScaleSetVMProtectionPolicy{
				ProtectFromScaleIn: &protect,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("cloudscaler(azure): update vm protection %s=%v: %w", *vm.InstanceID, protect, err)
	}
	if err := future.WaitForCompletionRef(ctx, s.vmssVMs.Client); err != nil {
		return fmt.Errorf("cloudscaler(azure): await vm protection update: %w", err)
	}
	return nil
}

func (s *AzureScaler) AddScaleInProtection(ctx context.Context, r runner.Runner) error {
	return s.setInstanceProtection(ctx, r, true)
}

func (s *AzureScaler) RemoveScaleInProtection(ctx context.Context, r runner.Runner) error {
	return s.setInstanceProtection(ctx, r, false)
}

// CountExistingVMs returns the scale set's SKU capacity, not a count of
// enumerated instances: the original count_of_existing_vms reads
// self.vmss.sku.capacity directly, since live instance enumeration lags
// the SKU during provisioning and deprovisioning.
func (s *AzureScaler) CountExistingVMs(ctx context.Context) (int, error) {
	result, err := s.vmss.Get(ctx, s.resourceGroup, s.scaleSetName)
	if err != nil {
		return 0, fmt.Errorf("cloudscaler(azure): get scale set: %w", err)
	}
	if result.Sku == nil || result.Sku.Capacity == nil {
		return 0, fmt.Errorf("cloudscaler(azure): scale set %s has no SKU capacity", s.scaleSetName)
	}
	return int(*result.Sku.Capacity), nil
}
