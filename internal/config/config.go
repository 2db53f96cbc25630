// Package config loads and validates the autoscaler's runtime
// configuration from environment variables, bound through viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigError reports a configuration load or validation failure.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Config is the fully validated runtime configuration for one
// autoscaler process.
type Config struct {
	// Control plane
	BaseURI     string
	APIKey      string
	Org         string
	RunnerGroup string

	// Scaling thresholds and steps
	ScaleInThreshold  int
	ScaleOutThreshold int
	ScaleInStep       int
	ScaleOutStep      int
	MinRunners        int

	// Cooldowns
	ScaleInCooldown  time.Duration
	ScaleOutCooldown time.Duration

	// Cooldown ledger blob names
	ScaleInTimestampBlobName  string
	ScaleOutTimestampBlobName string

	// AWS backend
	AWSASGName    string
	AWSBucketName string

	// Azure backend
	AzureSubscriptionID        string
	AzureResourceGroupName     string
	AzureVMSSName              string
	AzureBlobStorageConnString string
	AzureBlobContainerName     string

	// CloudProvider is either "aws" or "azure", inferred from which
	// backend's required fields are populated.
	CloudProvider string
}

const (
	providerAWS   = "aws"
	providerAzure = "azure"
)

// Load reads configuration from the process environment via viper and
// returns a fully validated Config, or a *ConfigError describing the
// first validation failure encountered.
func Load() (*Config, error) {
	return LoadWithConfigFile("")
}

// LoadWithConfigFile behaves like Load, additionally merging values
// from configFile (if non-empty) for local testing without exporting
// environment variables. Environment variables still take precedence
// over the file, matching viper's usual precedence order.
func LoadWithConfigFile(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Field: "config_file", Message: err.Error()}
		}
	}

	v.SetDefault("SCALE_IN_THRESHOLD", 0)
	v.SetDefault("SCALE_OUT_THRESHOLD", 0)
	v.SetDefault("SCALE_IN_STEP", 1)
	v.SetDefault("SCALE_OUT_STEP", 1)
	v.SetDefault("MIN_RUNNERS", 0)
	v.SetDefault("SCALE_IN_COOLDOWN_DURATION", 5)
	v.SetDefault("SCALE_OUT_COOLDOWN_DURATION", 5)
	v.SetDefault("SCALE_IN_TIMESTAMP_BLOB_NAME", "scale_in_timestamp.txt")
	v.SetDefault("SCALE_OUT_TIMESTAMP_BLOB_NAME", "scale_out_timestamp.txt")

	cfg := &Config{
		BaseURI:     v.GetString("SG_BASE_URI"),
		APIKey:      v.GetString("SG_API_KEY"),
		Org:         v.GetString("SG_ORG"),
		RunnerGroup: v.GetString("SG_RUNNER_GROUP"),

		ScaleInThreshold:  v.GetInt("SCALE_IN_THRESHOLD"),
		ScaleOutThreshold: v.GetInt("SCALE_OUT_THRESHOLD"),
		ScaleInStep:       v.GetInt("SCALE_IN_STEP"),
		ScaleOutStep:      v.GetInt("SCALE_OUT_STEP"),
		MinRunners:        v.GetInt("MIN_RUNNERS"),

		ScaleInCooldown:  time.Duration(v.GetInt64("SCALE_IN_COOLDOWN_DURATION")) * time.Minute,
		ScaleOutCooldown: time.Duration(v.GetInt64("SCALE_OUT_COOLDOWN_DURATION")) * time.Minute,

		ScaleInTimestampBlobName:  v.GetString("SCALE_IN_TIMESTAMP_BLOB_NAME"),
		ScaleOutTimestampBlobName: v.GetString("SCALE_OUT_TIMESTAMP_BLOB_NAME"),

		AWSASGName:    v.GetString("AWS_ASG_NAME"),
		AWSBucketName: v.GetString("AWS_BUCKET_NAME"),

		AzureSubscriptionID:        v.GetString("AZURE_SUBSCRIPTION_ID"),
		AzureResourceGroupName:     v.GetString("AZURE_RESOURCE_GROUP_NAME"),
		AzureVMSSName:              v.GetString("AZURE_VMSS_NAME"),
		AzureBlobStorageConnString: v.GetString("AZURE_BLOB_STORAGE_CONN_STRING"),
		AzureBlobContainerName:     v.GetString("AZURE_BLOB_CONTAINER_NAME"),
	}

	if err := cfg.determineProvider(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) determineProvider() error {
	hasAWS := c.AWSASGName != "" || c.AWSBucketName != ""
	hasAzure := c.AzureVMSSName != "" || c.AzureResourceGroupName != ""

	switch {
	case hasAWS && hasAzure:
		return &ConfigError{Field: "cloud_provider", Message: "both AWS_ASG_NAME/AWS_BUCKET_NAME and AZURE_VMSS_NAME/AZURE_RESOURCE_GROUP_NAME are set; exactly one backend must be configured"}
	case hasAWS:
		c.CloudProvider = providerAWS
	case hasAzure:
		c.CloudProvider = providerAzure
	default:
		return &ConfigError{Field: "cloud_provider", Message: "neither an AWS nor an Azure backend is configured"}
	}
	return nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"SG_BASE_URI":     c.BaseURI,
		"SG_API_KEY":      c.APIKey,
		"SG_ORG":          c.Org,
		"SG_RUNNER_GROUP": c.RunnerGroup,
	}
	for field, value := range required {
		if value == "" {
			return &ConfigError{Field: field, Message: "must be set"}
		}
	}

	if c.CloudProvider == providerAWS {
		if c.AWSASGName == "" {
			return &ConfigError{Field: "AWS_ASG_NAME", Message: "must be set for the aws backend"}
		}
		if c.AWSBucketName == "" {
			return &ConfigError{Field: "AWS_BUCKET_NAME", Message: "must be set for the aws backend"}
		}
	}
	if c.CloudProvider == providerAzure {
		for field, value := range map[string]string{
			"AZURE_SUBSCRIPTION_ID":          c.AzureSubscriptionID,
			"AZURE_RESOURCE_GROUP_NAME":      c.AzureResourceGroupName,
			"AZURE_VMSS_NAME":                c.AzureVMSSName,
			"AZURE_BLOB_STORAGE_CONN_STRING": c.AzureBlobStorageConnString,
			"AZURE_BLOB_CONTAINER_NAME":      c.AzureBlobContainerName,
		} {
			if value == "" {
				return &ConfigError{Field: field, Message: "must be set for the azure backend"}
			}
		}
	}

	if c.ScaleInStep <= 0 {
		return &ConfigError{Field: "SCALE_IN_STEP", Message: "must be a positive integer"}
	}
	if c.ScaleOutStep <= 0 {
		return &ConfigError{Field: "SCALE_OUT_STEP", Message: "must be a positive integer"}
	}
	if c.MinRunners < 0 {
		return &ConfigError{Field: "MIN_RUNNERS", Message: "must not be negative"}
	}
	if c.ScaleInThreshold < 0 || c.ScaleOutThreshold < 0 {
		return &ConfigError{Field: "SCALE_IN_THRESHOLD/SCALE_OUT_THRESHOLD", Message: "must not be negative"}
	}

	return nil
}
