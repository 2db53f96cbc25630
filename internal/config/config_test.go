package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"SG_BASE_URI", "SG_API_KEY", "SG_ORG", "SG_RUNNER_GROUP",
		"SCALE_IN_THRESHOLD", "SCALE_OUT_THRESHOLD", "SCALE_IN_STEP", "SCALE_OUT_STEP",
		"SCALE_IN_COOLDOWN_DURATION", "SCALE_OUT_COOLDOWN_DURATION",
		"SCALE_IN_TIMESTAMP_BLOB_NAME", "SCALE_OUT_TIMESTAMP_BLOB_NAME",
		"AWS_ASG_NAME", "AWS_BUCKET_NAME",
		"AZURE_SUBSCRIPTION_ID", "AZURE_RESOURCE_GROUP_NAME", "AZURE_VMSS_NAME",
		"AZURE_BLOB_STORAGE_CONN_STRING", "AZURE_BLOB_CONTAINER_NAME",
		"MIN_RUNNERS",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func setBaseRequired(t *testing.T) {
	t.Helper()
	os.Setenv("SG_BASE_URI", "https://app.stackguardian.io")
	os.Setenv("SG_API_KEY", "test-key")
	os.Setenv("SG_ORG", "acme")
	os.Setenv("SG_RUNNER_GROUP", "default")
}

func TestLoadAWSBackendSucceeds(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setBaseRequired(t)
	os.Setenv("AWS_ASG_NAME", "runners-asg")
	os.Setenv("AWS_BUCKET_NAME", "runners-bucket")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CloudProvider != providerAWS {
		t.Fatalf("expected aws provider, got %s", cfg.CloudProvider)
	}
	if cfg.ScaleInCooldown != 5*time.Minute {
		t.Fatalf("expected default 5m scale-in cooldown, got %s", cfg.ScaleInCooldown)
	}
}

func TestLoadAzureBackendSucceeds(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setBaseRequired(t)
	os.Setenv("AZURE_SUBSCRIPTION_ID", "sub-1")
	os.Setenv("AZURE_RESOURCE_GROUP_NAME", "rg-1")
	os.Setenv("AZURE_VMSS_NAME", "vmss-1")
	os.Setenv("AZURE_BLOB_STORAGE_CONN_STRING", "conn-str")
	os.Setenv("AZURE_BLOB_CONTAINER_NAME", "container-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CloudProvider != providerAzure {
		t.Fatalf("expected azure provider, got %s", cfg.CloudProvider)
	}
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	os.Setenv("AWS_ASG_NAME", "runners-asg")
	os.Setenv("AWS_BUCKET_NAME", "runners-bucket")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected an error when SG_BASE_URI etc. are unset")
	}
}

func TestLoadBothBackendsConfiguredFails(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setBaseRequired(t)
	os.Setenv("AWS_ASG_NAME", "runners-asg")
	os.Setenv("AWS_BUCKET_NAME", "runners-bucket")
	os.Setenv("AZURE_VMSS_NAME", "vmss-1")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected an error when both AWS and Azure backends are configured")
	}
}

func TestLoadNeitherBackendConfiguredFails(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setBaseRequired(t)

	_, err := Load()
	if err == nil {
		t.Fatalf("expected an error when no backend is configured")
	}
}

func TestLoadAppliesDistinctCooldownDurations(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setBaseRequired(t)
	os.Setenv("AWS_ASG_NAME", "runners-asg")
	os.Setenv("AWS_BUCKET_NAME", "runners-bucket")
	os.Setenv("SCALE_IN_COOLDOWN_DURATION", "10")
	os.Setenv("SCALE_OUT_COOLDOWN_DURATION", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ScaleInCooldown != 10*time.Minute {
		t.Errorf("expected scale-in cooldown 10m, got %s", cfg.ScaleInCooldown)
	}
	if cfg.ScaleOutCooldown != 2*time.Minute {
		t.Errorf("expected scale-out cooldown 2m, got %s", cfg.ScaleOutCooldown)
	}
}

func TestLoadWithConfigFileMergesFileValues(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	dir := t.TempDir()
	path := dir + "/autoscaler.yaml"
	contents := "SG_BASE_URI: https://file.example\nSG_API_KEY: file-key\nSG_ORG: file-org\nSG_RUNNER_GROUP: file-group\nAWS_ASG_NAME: file-asg\nAWS_BUCKET_NAME: file-bucket\nSCALE_OUT_STEP: 3\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadWithConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURI != "https://file.example" {
		t.Errorf("expected base URI from config file, got %q", cfg.BaseURI)
	}
	if cfg.ScaleOutStep != 3 {
		t.Errorf("expected scale-out step 3 from config file, got %d", cfg.ScaleOutStep)
	}
}

func TestLoadWithConfigFileEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setBaseRequired(t)
	os.Setenv("AWS_ASG_NAME", "env-asg")
	os.Setenv("AWS_BUCKET_NAME", "env-bucket")

	dir := t.TempDir()
	path := dir + "/autoscaler.yaml"
	contents := "AWS_ASG_NAME: file-asg\nAWS_BUCKET_NAME: file-bucket\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadWithConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AWSASGName != "env-asg" {
		t.Errorf("expected env var to take precedence over config file, got %q", cfg.AWSASGName)
	}
}

func TestLoadRejectsNonPositiveSteps(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setBaseRequired(t)
	os.Setenv("AWS_ASG_NAME", "runners-asg")
	os.Setenv("AWS_BUCKET_NAME", "runners-bucket")
	os.Setenv("SCALE_OUT_STEP", "0")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected an error for a non-positive SCALE_OUT_STEP")
	}
}
