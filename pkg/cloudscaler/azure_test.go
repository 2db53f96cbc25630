package cloudscaler

import (
	"testing"

	"github.com/Azure/azure-sdk-for-go/services/compute/mgmt/2020-06-01/compute"
)

func vmWithComputerNameAndProtection(computerName string, policy *compute.VirtualMachineScaleSetVMProtectionPolicy) compute.VirtualMachineScaleSetVM {
	return compute.VirtualMachineScaleSetVM{
		InstanceID: strPtr("0"),
		VirtualMachineScaleSetVMProperties: &compute.VirtualMachineScaleSetVMProperties{
			OsProfile:        &compute.OSProfile{ComputerName: &computerName},
			ProtectionPolicy: policy,
		},
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestAzureInstanceProtectedDefaultsFalseWhenNoPolicy(t *testing.T) {
	vm := vmWithComputerNameAndProtection("runner000", nil)
	if azureInstanceProtected(vm) {
		t.Fatalf("expected false when ProtectionPolicy is nil")
	}
}

func TestAzureInstanceProtectedReflectsPolicyValue(t *testing.T) {
	protectedVM := vmWithComputerNameAndProtection("runner000", &compute.VirtualMachineScaleSetVMProtectionPolicy{
		ProtectFromScaleIn: boolPtr(true),
	})
	if !azureInstanceProtected(protectedVM) {
		t.Fatalf("expected true when ProtectFromScaleIn is true")
	}

	unprotectedVM := vmWithComputerNameAndProtection("runner001", &compute.VirtualMachineScaleSetVMProtectionPolicy{
		ProtectFromScaleIn: boolPtr(false),
	})
	if azureInstanceProtected(unprotectedVM) {
		t.Fatalf("expected false when ProtectFromScaleIn is explicitly false")
	}
}

func TestMatchVMByComputerNameUsesHostnamePrefix(t *testing.T) {
	vms := []compute.VirtualMachineScaleSetVM{
		vmWithComputerNameAndProtection("runnervmss0", nil),
		vmWithComputerNameAndProtection("runnervmss1", nil),
	}

	// Azure truncates the configured computer name, so the VM's name is a
	// prefix of the control-plane-reported name, not an exact match.
	vm, found := matchVMByComputerName(vms, "runnervmss1-full-hostname-suffix")
	if !found {
		t.Fatalf("expected a prefix match")
	}
	if vmHostname(vm) != "runnervmss1" {
		t.Fatalf("matched the wrong vm: %+v", vm)
	}
}

func TestMatchVMByComputerNameNoMatch(t *testing.T) {
	vms := []compute.VirtualMachineScaleSetVM{
		vmWithComputerNameAndProtection("runnervmss0", nil),
	}

	_, found := matchVMByComputerName(vms, "unrelated-hostname")
	if found {
		t.Fatalf("expected no match")
	}
}

func TestVMHostnameMissingOSProfile(t *testing.T) {
	vm := compute.VirtualMachineScaleSetVM{VirtualMachineScaleSetVMProperties: &compute.VirtualMachineScaleSetVMProperties{}}
	if vmHostname(vm) != "" {
		t.Fatalf("expected empty hostname when OsProfile is nil")
	}
}
