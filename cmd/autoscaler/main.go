// Package main is the runner-autoscaler's process entry point: a
// cobra CLI exposing a long-running ticker loop, a one-shot reconcile,
// and a version command, with a Prometheus /metrics endpoint served
// alongside the loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stackguardian/runner-autoscaler/internal/audit"
	"github.com/stackguardian/runner-autoscaler/internal/config"
	applog "github.com/stackguardian/runner-autoscaler/internal/log"
	"github.com/stackguardian/runner-autoscaler/internal/metrics"
	"github.com/stackguardian/runner-autoscaler/pkg/blobstore"
	"github.com/stackguardian/runner-autoscaler/pkg/cloudscaler"
	"github.com/stackguardian/runner-autoscaler/pkg/controlplane"
	"github.com/stackguardian/runner-autoscaler/pkg/reconciler"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var (
	resyncInterval time.Duration
	metricsAddr    string
	developmentLog bool
	configFile     string
)

func main() {
	root := &cobra.Command{
		Use:   "autoscaler",
		Short: "Scales a runner group against a job queue on AWS or Azure",
	}
	root.PersistentFlags().DurationVar(&resyncInterval, "resync-interval", 30*time.Second, "interval between reconcile ticks")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", envOrDefault("METRICS_ADDR", ":9090"), "address to serve /metrics on, empty disables it")
	root.PersistentFlags().BoolVar(&developmentLog, "development-log", false, "use human-readable, colorized logging instead of JSON")
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file merged underneath environment variables")

	root.AddCommand(newRunCommand(), newReconcileCommand(), newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("runner-autoscaler\n  Version:    %s\n  Commit:     %s\n  Build Date: %s\n", Version, Commit, BuildDate)
			return nil
		},
	}
}

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconcile tick and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return engine.Reconcile(cmd.Context())
		},
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reconcile loop until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, logger, err := buildEngine()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if metricsAddr != "" {
				go serveMetrics(logger)
			}

			stopCh := setupSignalHandler()
			return run(cmd.Context(), engine, logger, stopCh)
		},
	}
}

// run executes the main reconcile loop on resyncInterval, exiting
// cleanly when stopCh is closed.
func run(ctx context.Context, engine *reconciler.Engine, logger *zap.Logger, stopCh <-chan struct{}) error {
	logger.Info("autoscaler running", zap.Duration("resync_interval", resyncInterval))
	audit.Global().LogAutoscalerStarted(ctx)

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()

	if err := engine.Reconcile(ctx); err != nil {
		applog.LogReconcileError(logger, "initial_tick", err)
	}

	for {
		select {
		case <-stopCh:
			logger.Info("received shutdown signal, stopping")
			audit.Global().LogAutoscalerStopped(ctx, "shutdown signal received")
			return nil

		case <-ticker.C:
			if err := engine.Reconcile(ctx); err != nil {
				applog.LogReconcileError(logger, "tick", err)
			}
		}
	}
}

func serveMetrics(logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", metricsAddr))
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

// buildEngine loads configuration, wires the cloud-specific scaler and
// control-plane client it names, and returns a ready-to-run Engine.
func buildEngine() (*reconciler.Engine, *zap.Logger, error) {
	logger, err := applog.New(developmentLog)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	cfg, err := config.LoadWithConfigFile(configFile)
	if err != nil {
		return nil, logger, fmt.Errorf("load config: %w", err)
	}

	auditLogger := audit.New(&audit.Config{Enabled: true, Logger: logger})
	audit.SetGlobal(auditLogger)

	scaler, err := buildScaler(cfg, logger)
	if err != nil {
		return nil, logger, fmt.Errorf("build cloud scaler: %w", err)
	}

	controlPlane := controlplane.NewClient(cfg.BaseURI, cfg.APIKey, cfg.Org, cfg.RunnerGroup, &controlplane.ClientOptions{
		Logger: logger,
	})

	engineCfg := reconciler.Config{
		ScaleOutThreshold: cfg.ScaleOutThreshold,
		ScaleInThreshold:  cfg.ScaleInThreshold,
		ScaleOutStep:      cfg.ScaleOutStep,
		ScaleInStep:       cfg.ScaleInStep,
		MinRunners:        cfg.MinRunners,
		ScaleOutCooldown:  cfg.ScaleOutCooldown,
		ScaleInCooldown:   cfg.ScaleInCooldown,
	}

	return reconciler.New(controlPlane, scaler, engineCfg, auditLogger, logger), logger, nil
}

// buildScaler constructs the AWS or Azure CloudScaler named by
// cfg.CloudProvider, wiring its cooldown ledger to the matching blob
// store backend.
func buildScaler(cfg *config.Config, logger *zap.Logger) (cloudscaler.CloudScaler, error) {
	switch cfg.CloudProvider {
	case "aws":
		sess, err := session.NewSession(aws.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("build aws session: %w", err)
		}
		store := blobstore.NewS3Store(s3.New(sess), cfg.AWSBucketName)
		return cloudscaler.NewAWSScaler(
			autoscaling.New(sess),
			ec2.New(sess),
			cfg.AWSASGName,
			store,
			cfg.ScaleOutTimestampBlobName,
			cfg.ScaleInTimestampBlobName,
			logger,
		), nil

	case "azure":
		store, err := blobstore.NewAzureStore(cfg.AzureBlobStorageConnString, cfg.AzureBlobContainerName)
		if err != nil {
			return nil, fmt.Errorf("build azure blob store: %w", err)
		}
		creds := cloudscaler.AzureCredentials{SubscriptionID: cfg.AzureSubscriptionID}
		return cloudscaler.NewAzureScaler(
			creds,
			cfg.AzureResourceGroupName,
			cfg.AzureVMSSName,
			store,
			cfg.ScaleOutTimestampBlobName,
			cfg.ScaleInTimestampBlobName,
			logger,
		)

	default:
		return nil, fmt.Errorf("unsupported cloud provider %q", cfg.CloudProvider)
	}
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func setupSignalHandler() <-chan struct{} {
	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		close(stopCh)
		<-sigCh
		os.Exit(1)
	}()

	return stopCh
}
